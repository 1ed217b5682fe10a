package types

import "testing"

func TestObjectTypeValidate(t *testing.T) {
	cases := []struct {
		name    string
		otd     ObjectTypeDefinition
		wantErr bool
	}{
		{
			name: "plain properties without explicit id",
			otd: ObjectTypeDefinition{
				TypeName: "Author",
				Properties: []Property{
					{Name: "name", DataType: TypeText},
					{Name: "birth_year", DataType: TypeInteger, IsNullable: true},
				},
			},
		},
		{
			name: "explicit uuid id marked primary",
			otd: ObjectTypeDefinition{
				TypeName: "Person",
				Properties: []Property{
					{Name: "id", DataType: TypeUUID, IsPrimary: true},
					{Name: "name", DataType: TypeText},
				},
			},
		},
		{
			name: "id declared with non-uuid type",
			otd: ObjectTypeDefinition{
				TypeName: "Person",
				Properties: []Property{
					{Name: "id", DataType: TypeText},
				},
			},
			wantErr: true,
		},
		{
			name: "primary key on a property other than id",
			otd: ObjectTypeDefinition{
				TypeName: "Person",
				Properties: []Property{
					{Name: "name", DataType: TypeText, IsPrimary: true},
				},
			},
			wantErr: true,
		},
		{
			name: "duplicate property names",
			otd: ObjectTypeDefinition{
				TypeName: "Person",
				Properties: []Property{
					{Name: "name", DataType: TypeText},
					{Name: "name", DataType: TypeText},
				},
			},
			wantErr: true,
		},
		{
			name:    "no properties",
			otd:     ObjectTypeDefinition{TypeName: "Empty"},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.otd.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestEmbeddingDefinitionValidate(t *testing.T) {
	ed := EmbeddingDefinition{
		Name:               "summary_embedding",
		ObjectTypeName:     "Paper",
		SourcePropertyName: "summary",
		Dimensions:         1024,
	}
	if err := ed.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	bad := ed
	bad.Dimensions = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero dimensions")
	}

	bad = ed
	bad.Metric = "manhattan"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown metric")
	}
}
