package catalog

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const widgetsYAML = `
database:
  id: widgets_db
  name: Widgets
collections:
  - id: widgets
    name: Widgets
    attributes:
      - {key: name, type: string, size: 128, required: true}
      - {key: count, type: integer, required: false, default: 3, min: 0, max: 10}
      - {key: price, type: float, required: false, default: 1}
      - {key: active, type: boolean, required: false, default: true}
      - {key: contact, type: email, required: false}
      - {key: homepage, type: url, required: false}
      - {key: created_at, type: datetime, required: true}
    indexes:
      - {key: idx_name, type: key, attributes: [name]}
seeds:
  - collection: widgets
    label: name
    documents:
      - {name: sprocket, created_at: "$now"}
`

func TestParseYAML(t *testing.T) {
	def, err := Parse([]byte(widgetsYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if def.DatabaseID != "widgets_db" || def.DatabaseName != "Widgets" {
		t.Errorf("unexpected database: %s / %s", def.DatabaseID, def.DatabaseName)
	}
	if len(def.Collections) != 1 {
		t.Fatalf("expected 1 collection, got %d", len(def.Collections))
	}

	c := def.Collections[0]
	if !c.DocumentSecurity {
		t.Error("expected document security to default to true")
	}
	if len(c.Permissions) != 4 {
		t.Errorf("expected default permissions, got %v", c.Permissions)
	}

	wantTypes := []AttributeType{
		AttributeString, AttributeInteger, AttributeFloat, AttributeBoolean,
		AttributeEmail, AttributeURL, AttributeDatetime,
	}
	for i, want := range wantTypes {
		if got := c.Attributes[i].Type(); got != want {
			t.Errorf("attribute %d type = %s, want %s", i, got, want)
		}
	}

	name, ok := c.Attributes[0].(StringAttribute)
	if !ok || name.Size != 128 || !name.Required {
		t.Errorf("unexpected string attribute: %+v", c.Attributes[0])
	}

	count, ok := c.Attributes[1].(IntegerAttribute)
	if !ok || count.Default == nil || *count.Default != 3 || *count.Min != 0 || *count.Max != 10 {
		t.Errorf("unexpected integer attribute: %+v", c.Attributes[1])
	}

	price, ok := c.Attributes[2].(FloatAttribute)
	if !ok || price.Default == nil || *price.Default != 1 {
		t.Errorf("integer literal default should widen to float: %+v", c.Attributes[2])
	}

	if len(def.Seeds) != 1 || def.Seeds[0].Documents[0]["created_at"] != NowPlaceholder {
		t.Errorf("unexpected seeds: %+v", def.Seeds)
	}
}

func TestParseJSON(t *testing.T) {
	data := `{
		"database": {"id": "db", "name": "DB"},
		"collections": [{
			"id": "things",
			"name": "Things",
			"document_security": false,
			"permissions": ["read(\"any\")"],
			"attributes": [
				{"key": "qty", "type": "integer", "required": false, "default": 4},
				{"key": "label", "type": "string", "required": true}
			],
			"indexes": [{"key": "idx_qty", "type": "key", "attributes": ["qty"], "orders": ["DESC"]}]
		}]
	}`

	def, err := Parse([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	c := def.Collections[0]
	if c.DocumentSecurity {
		t.Error("expected document security false")
	}
	if len(c.Permissions) != 1 {
		t.Errorf("expected explicit permissions to be kept, got %v", c.Permissions)
	}
	qty := c.Attributes[0].(IntegerAttribute)
	if *qty.Default != 4 {
		t.Errorf("default = %d, want 4", *qty.Default)
	}
	label := c.Attributes[1].(StringAttribute)
	if label.Size != DefaultStringSize {
		t.Errorf("size = %d, want default %d", label.Size, DefaultStringSize)
	}
}

func TestParseCUE(t *testing.T) {
	data := `
database: {id: "cue_db", name: "CUE"}
collections: [{
	id:   "widgets"
	name: "Widgets"
	attributes: [{key: "name", type: "string", size: 64, required: true}]
	indexes: [{key: "idx_name", type: "unique", attributes: ["name"]}]
}]
`
	def, err := Parse([]byte(data), FormatCUE)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if def.DatabaseID != "cue_db" {
		t.Errorf("database id = %s", def.DatabaseID)
	}
	if def.Collections[0].Indexes[0].Type != IndexUnique {
		t.Errorf("index type = %s", def.Collections[0].Indexes[0].Type)
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown index attribute",
			yaml: `
database: {id: db, name: DB}
collections:
  - id: c
    name: C
    attributes: [{key: a, type: string, size: 10, required: false}]
    indexes: [{key: idx, type: key, attributes: [missing]}]
`,
			wantErr: `references unknown attribute "missing"`,
		},
		{
			name: "default type mismatch",
			yaml: `
database: {id: db, name: DB}
collections:
  - id: c
    name: C
    attributes: [{key: a, type: boolean, required: false, default: "yes"}]
`,
			wantErr: "is not a boolean",
		},
		{
			name: "size on non-string",
			yaml: `
database: {id: db, name: DB}
collections:
  - id: c
    name: C
    attributes: [{key: a, type: integer, size: 10, required: false}]
`,
			wantErr: "size is only valid for string attributes",
		},
		{
			name: "unknown attribute type",
			yaml: `
database: {id: db, name: DB}
collections:
  - id: c
    name: C
    attributes: [{key: a, type: blob, required: false}]
`,
			wantErr: "invalid catalog",
		},
		{
			name: "duplicate attribute",
			yaml: `
database: {id: db, name: DB}
collections:
  - id: c
    name: C
    attributes:
      - {key: a, type: string, required: false}
      - {key: a, type: string, required: false}
`,
			wantErr: "duplicate attribute key",
		},
		{
			name: "seed for unknown collection",
			yaml: `
database: {id: db, name: DB}
collections:
  - id: c
    name: C
    attributes: [{key: a, type: string, required: false}]
seeds:
  - collection: nope
    documents: [{a: x}]
`,
			wantErr: `unknown collection "nope"`,
		},
		{
			name:    "no collections",
			yaml:    "database: {id: db, name: DB}\n",
			wantErr: "invalid catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), FormatYAML)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	def := Definition{
		Collections: []Collection{
			{
				ID:   "c",
				Name: "C",
				Attributes: []Attribute{
					StringAttribute{AttributeMeta: AttributeMeta{Key: "s"}, Size: 0},
				},
				Indexes: []Index{
					{Key: "i", Type: "bogus", Attributes: []string{"s", "x"}},
				},
			},
		},
	}

	err := def.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError in chain, got %T", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"database.id: is required",
		"database.name: is required",
		"size must be positive",
		"invalid index type: bogus",
		`references unknown attribute "x"`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in:\n%s", want, msg)
		}
	}
}

func TestStringDefaultCountsCharacters(t *testing.T) {
	fits := "ééééé"
	long := "éééééé"

	a := StringAttribute{AttributeMeta: AttributeMeta{Key: "s"}, Size: 5, Default: &fits}
	if err := a.validate(); err != nil {
		t.Errorf("five characters in size 5: %v", err)
	}
	a.Default = &long
	if err := a.validate(); err == nil {
		t.Error("expected error for six characters in size 5")
	}
}

func TestIntegerBoundsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		attr string
	}{
		{"default", "{key: n, type: integer, required: false, default: 1e19}"},
		{"min", "{key: n, type: integer, required: false, min: -1e19}"},
		{"max", "{key: n, type: integer, required: false, max: 9223372036854775808.0}"},
		{"fractional max", "{key: n, type: integer, required: false, max: 2.5}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "database: {id: db, name: DB}\ncollections:\n  - id: c\n    name: C\n    attributes: [" + tt.attr + "]\n"
			_, err := Parse([]byte(data), FormatYAML)
			if err == nil || !strings.Contains(err.Error(), "not an integer") {
				t.Errorf("expected out of range rejection, got %v", err)
			}
		})
	}

	if v, ok := floatToInt64(-9223372036854775808); !ok || v != -9223372036854775808 {
		t.Errorf("floatToInt64(MinInt64) = %d, %t", v, ok)
	}
}

func TestAttributeVariantValidation(t *testing.T) {
	lo, hi := int64(5), int64(1)
	bad := "not-a-date"
	email := "nope"
	tests := []struct {
		name string
		attr Attribute
	}{
		{"integer min above max", IntegerAttribute{AttributeMeta: AttributeMeta{Key: "i"}, Min: &lo, Max: &hi}},
		{"datetime default", DatetimeAttribute{AttributeMeta: AttributeMeta{Key: "d"}, Default: &bad}},
		{"email default", EmailAttribute{AttributeMeta: AttributeMeta{Key: "e"}, Default: &email}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.attr.validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	def, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	if def.DatabaseID != "eprescription_dev" {
		t.Errorf("database id = %s", def.DatabaseID)
	}
	if len(def.Collections) != 21 {
		t.Errorf("collections = %d, want 21", len(def.Collections))
	}
	if def.CountAttributes() != 265 {
		t.Errorf("attributes = %d, want 265", def.CountAttributes())
	}
	if def.CountIndexes() != 70 {
		t.Errorf("indexes = %d, want 70", def.CountIndexes())
	}
	if def.Collections[0].ID != "user_profiles" {
		t.Errorf("first collection = %s, want user_profiles", def.Collections[0].ID)
	}
	if len(def.Seeds) != 3 {
		t.Errorf("seed sets = %d, want 3", len(def.Seeds))
	}

	medicines, ok := def.Collection("nhs_medicines")
	if !ok {
		t.Fatal("nhs_medicines missing")
	}
	name, _ := medicines.Attribute("name")
	if name.Type() != AttributeString {
		t.Errorf("nhs_medicines.name type = %s", name.Type())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	def, err := Parse([]byte(widgetsYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	def.Seeds[0].Documents[0]["tags"] = []interface{}{"blue"}

	clone := def.Clone()
	def.Collections[0].ID = "changed"
	def.Collections[0].Indexes[0].Attributes[0] = "changed"
	def.Seeds[0].Documents[0]["name"] = "changed"
	def.Seeds[0].Documents[0]["tags"].([]interface{})[0] = "changed"

	count, _ := def.Collections[0].Attribute("count")
	*count.(IntegerAttribute).Default = 99
	*count.(IntegerAttribute).Max = 99

	if clone.Collections[0].ID != "widgets" {
		t.Error("collection id leaked into clone")
	}
	if clone.Collections[0].Indexes[0].Attributes[0] != "name" {
		t.Error("index attributes leaked into clone")
	}
	if clone.Seeds[0].Documents[0]["name"] != "sprocket" {
		t.Error("seed document leaked into clone")
	}
	if tags := clone.Seeds[0].Documents[0]["tags"].([]interface{}); tags[0] != "blue" {
		t.Error("nested seed value leaked into clone")
	}

	cloned, _ := clone.Collections[0].Attribute("count")
	if v, _ := cloned.DefaultValue(); v != int64(3) {
		t.Errorf("clone default = %v, want 3", v)
	}
	if hi := *cloned.(IntegerAttribute).Max; hi != 10 {
		t.Errorf("clone max = %d, want 10", hi)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	def, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	for _, format := range []Format{FormatYAML, FormatJSON, FormatCUE} {
		var buf bytes.Buffer
		if err := Encode(&buf, def, format); err != nil {
			t.Fatalf("Encode(%s) failed: %v", format, err)
		}
		back, err := Parse(buf.Bytes(), format)
		if err != nil {
			t.Fatalf("Parse(%s) of encoded catalog failed: %v", format, err)
		}
		if back.CountAttributes() != def.CountAttributes() || back.CountIndexes() != def.CountIndexes() {
			t.Errorf("%s round trip lost data", format)
		}
		if len(back.Seeds) != len(def.Seeds) {
			t.Errorf("%s round trip lost seeds: got %d, want %d", format, len(back.Seeds), len(def.Seeds))
		}
	}
}

func TestEncodeCUEKeepsTypedDefaults(t *testing.T) {
	def, err := Parse([]byte(widgetsYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, def, FormatCUE); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := Parse(buf.Bytes(), FormatCUE)
	if err != nil {
		t.Fatalf("Parse of CUE output failed: %v\n%s", err, buf.String())
	}

	c, _ := back.Collection("widgets")
	count, ok := c.Attribute("count")
	if !ok {
		t.Fatal("count attribute missing")
	}
	ia := count.(IntegerAttribute)
	if *ia.Default != 3 || *ia.Min != 0 || *ia.Max != 10 {
		t.Errorf("count = default %d min %d max %d, want 3 0 10", *ia.Default, *ia.Min, *ia.Max)
	}
	price, _ := c.Attribute("price")
	if v, _ := price.DefaultValue(); v != 1.0 {
		t.Errorf("price default = %v, want 1", v)
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"a.yaml": FormatYAML,
		"a.YML":  FormatYAML,
		"a.json": FormatJSON,
		"a.cue":  FormatCUE,
	} {
		got, err := FormatFromPath(path)
		if err != nil || got != want {
			t.Errorf("FormatFromPath(%s) = %s, %v", path, got, err)
		}
	}
	if _, err := FormatFromPath("a.toml"); err == nil {
		t.Error("expected error for .toml")
	}
}
