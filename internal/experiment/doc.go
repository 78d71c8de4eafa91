// Package experiment runs batch evaluations over a constraint dataset.
//
// Runner.Run evaluates every scenario on every project of the dataset and
// writes the per-constraint and per-technique reports under
// <output>/<run-id>/. Runner.SearchWeights runs a greedy search over the
// Lasso component weights and records every combination it tried.
//
//	r := experiment.NewRunner(indexer.New(store, cfg, logger), cfg, logger)
//	report, err := r.Run(ctx, constraints, "/data/sources", &experiment.Options{WriteIndividual: true})
//	for _, row := range report.Summary {
//	    fmt.Println(row.Technique, row.Aggregate.PercentHits(10))
//	}
package experiment
