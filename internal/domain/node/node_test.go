package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdb-backend/internal/domain/shared"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		semanticID string
		typ        Type
		wantErr    error
	}{
		{"valid function", "ValidateOrder.FN.001", TypeFunction, nil},
		{"valid schema", "Order.SC.001", TypeSchema, nil},
		{"empty semantic id", "", TypeFunction, shared.ErrEmptySemanticID},
		{"whitespace only", "   ", TypeFunction, shared.ErrEmptySemanticID},
		{"embedded space", "Validate Order.FN.001", TypeFunction, shared.ErrInvalidSemanticID},
		{"unknown type", "X.XX.001", Type("GADGET"), shared.ErrInvalidNodeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New(tt.semanticID, tt.typ, "Name", "descr", "ws1", "sys1", "tester")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, n.UUID)
			assert.Equal(t, tt.semanticID, n.SemanticID)
			assert.False(t, n.CreatedAt.IsZero())
			assert.Equal(t, n.CreatedAt, n.UpdatedAt)
		})
	}
}

func TestTypeCategory(t *testing.T) {
	for _, typ := range AllTypes() {
		want := CategoryFunctional
		if typ == TypeSchema {
			want = CategorySchema
		}
		assert.Equal(t, want, typ.Category(), "type %s", typ)
	}
}

func TestClone_DeepCopies(t *testing.T) {
	n, err := New("A.FN.001", TypeFunction, "Validate", "descr", "ws1", "sys1", "tester")
	require.NoError(t, err)
	n.Position = &shared.Position{X: 10, Y: 20}
	n.Attributes = map[string]any{"color": "blue"}

	c := n.Clone()
	c.Position.X = 99
	c.Attributes["color"] = "red"
	c.Name = "changed"

	assert.Equal(t, float64(10), n.Position.X)
	assert.Equal(t, "blue", n.Attributes["color"])
	assert.Equal(t, "Validate", n.Name)
	assert.True(t, n.ContentEquals(n.Clone()))
}

func TestContentEquals(t *testing.T) {
	n, err := New("A.FN.001", TypeFunction, "Validate", "descr", "ws1", "sys1", "tester")
	require.NoError(t, err)

	same := n.Clone()
	same.UpdatedAt = same.UpdatedAt.Add(1)
	assert.True(t, n.ContentEquals(same), "timestamps are excluded")

	renamed := n.Clone()
	renamed.Name = "Other"
	assert.False(t, n.ContentEquals(renamed))

	moved := n.Clone()
	moved.Position = &shared.Position{X: 1}
	assert.False(t, n.ContentEquals(moved))

	assert.False(t, n.ContentEquals(nil))
}

func TestContentEquals_StructuredAttributes(t *testing.T) {
	n, err := New("A.FN.001", TypeFunction, "Validate", "descr", "ws1", "sys1", "tester")
	require.NoError(t, err)
	n.Attributes = map[string]any{
		"tags":   []any{"billing", "critical"},
		"bounds": map[string]any{"min": 0.0, "max": 10.0},
	}

	same := n.Clone()
	same.Attributes = map[string]any{
		"tags":   []any{"billing", "critical"},
		"bounds": map[string]any{"min": 0.0, "max": 10.0},
	}
	assert.True(t, n.ContentEquals(same))

	reordered := n.Clone()
	reordered.Attributes = map[string]any{
		"tags":   []any{"critical", "billing"},
		"bounds": map[string]any{"min": 0.0, "max": 10.0},
	}
	assert.False(t, n.ContentEquals(reordered))
}

func TestEmbeddingText(t *testing.T) {
	n, err := New("A.FN.001", TypeFunction, "Validate Order", "checks the order", "ws1", "sys1", "tester")
	require.NoError(t, err)
	assert.Equal(t, "Validate Order: checks the order", n.EmbeddingText())

	n.Descr = ""
	assert.Equal(t, "Validate Order", n.EmbeddingText())
}

func TestValidate_AssignsMissingUUID(t *testing.T) {
	n := &Node{SemanticID: "A.FN.001", Type: TypeFunction}
	require.NoError(t, n.Validate())
	assert.NotEmpty(t, n.UUID)
}
