package constraint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/pkg/types"
)

const dataset = `Project,ID,Enforcing Statement,Part 1,Ground Truth Type,Enforcing Statement CIP,Constraint Type,Text,Context,Operands,Consequence,Data Set
acme,acme-1,"core/src/main/java/org/acme/Order.java:24
core/src/main/java/org/acme/Order.java:27,28",x,app-code,binary-comparison,value comparison,quantity must be positive,Order,"quantity , 0",throw,train
acme,acme-2,lib/Foo.java:3,,not-app-code,,value comparison,ignored,,,,
acme,acme-3,org/acme/Order.java:1,,app-code,unknown-pattern,value comparison,unsupported,,,,
acme,acme-4,org/acme/Order.java:abc,,app-code,,value comparison,bad lines,,,,
acme,acme-5,org/acme/Order.java:9,,app-code,,telepathy,bad type,,,,
shop,shop-1,src/com/shop/Cart.java:12,,app-code,null-check,DUAL_VALUE_COMPARISON,item must exist,Cart,item,,test
`

func TestLoad(t *testing.T) {
	constraints, err := NewLoader(nil).Load(strings.NewReader(dataset))
	require.NoError(t, err)
	require.Len(t, constraints, 2)

	c := constraints[0]
	assert.Equal(t, "acme-1", c.ID)
	assert.Equal(t, "acme", c.System)
	assert.Equal(t, types.ConstraintValueComparison, c.Type)
	assert.Equal(t, types.PatternBinaryComparison, c.PatternType)
	assert.Equal(t, []string{"quantity", "0"}, c.Operands)
	assert.Equal(t, "throw", c.Consequence)
	assert.Equal(t, "train", c.Extra)
	assert.Equal(t, []string{"org/acme/Order.java:24", "org/acme/Order.java:27,28"}, c.GroundTruthIDs())

	shop := constraints[1]
	assert.Equal(t, types.ConstraintDualValueComparison, shop.Type)
	assert.Equal(t, "com/shop/Cart.java", shop.GroundTruths[0].File)
}

func TestLoad_MissingColumn(t *testing.T) {
	_, err := NewLoader(nil).Load(strings.NewReader("Project,ID\nacme,1\n"))
	assert.Error(t, err)
}

func TestLoad_Empty(t *testing.T) {
	constraints, err := NewLoader(nil).Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, constraints)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constraints.csv")
	require.NoError(t, os.WriteFile(path, []byte(dataset), 0o644))

	constraints, err := NewLoader(nil).LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, constraints, 2)

	_, err = NewLoader(nil).LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestGroupBySystem(t *testing.T) {
	constraints, err := NewLoader(nil).Load(strings.NewReader(dataset))
	require.NoError(t, err)

	systems, groups := GroupBySystem(constraints)
	assert.Equal(t, []string{"acme", "shop"}, systems)
	assert.Len(t, groups["acme"], 1)
	assert.Len(t, groups["shop"], 1)
}
