package version

import "testing"

func TestSchemaSupported(t *testing.T) {
	tests := []struct {
		schema int
		want   bool
	}{
		{MinSchema, true},
		{MaxSchema, true},
		{MinSchema - 1, false},
		{MaxSchema + 1, false},
		{2, true},
	}

	for _, tt := range tests {
		if got := SchemaSupported(tt.schema); got != tt.want {
			t.Errorf("SchemaSupported(%d) = %v, want %v", tt.schema, got, tt.want)
		}
	}
}
