package models

import "testing"

func contactType() BitTypeDefinition {
	return BitTypeDefinition{
		ID:       "contact",
		Origin:   OriginUser,
		Name:     "Contact",
		IconName: "user",
		Properties: []PropertyDefinition{
			{ID: "name", Name: "Name", Type: PropText, Required: true, Order: 0},
			{ID: "email", Name: "Email", Type: PropEmail, Order: 1},
			{ID: "tier", Name: "Tier", Type: PropSelect, Options: []any{"gold", "silver"}, Order: 2},
			{ID: "score", Name: "Score", Type: PropRating, Options: []any{0.0, 5.0, 1.0}, Order: 3},
		},
	}
}

func TestBitTypeValidate(t *testing.T) {
	def := contactType()
	if err := def.Validate(); err != nil {
		t.Fatalf("valid type rejected: %v", err)
	}

	missingIcon := contactType()
	missingIcon.IconName = ""
	if err := missingIcon.Validate(); err == nil {
		t.Error("missing icon should fail")
	}

	dup := contactType()
	dup.Properties = append(dup.Properties, PropertyDefinition{ID: "name", Name: "Again", Type: PropText})
	if err := dup.Validate(); err == nil {
		t.Error("duplicate property id should fail")
	}

	badType := contactType()
	badType.Properties[0].Type = "hologram"
	if err := badType.Validate(); err == nil {
		t.Error("unknown property type should fail")
	}

	badRange := contactType()
	badRange.Properties[3].Options = []any{"low", "high"}
	if err := badRange.Validate(); err == nil {
		t.Error("ranged property with non-numeric options should fail")
	}
}

func TestNormalizeOrderIsDense(t *testing.T) {
	def := contactType()
	def.Properties[0].Order = 7
	def.Properties[1].Order = 3
	def.Properties[2].Order = 3
	def.Properties[3].Order = -1
	def.NormalizeOrder()

	wantIDs := []string{"score", "email", "tier", "name"}
	for i, p := range def.Properties {
		if p.Order != i {
			t.Errorf("property %d order = %d", i, p.Order)
		}
		if p.ID != wantIDs[i] {
			t.Errorf("property %d = %q, want %q", i, p.ID, wantIDs[i])
		}
	}
}

func TestValidateValue(t *testing.T) {
	def := contactType()
	tier, _ := def.Property("tier")
	score, _ := def.Property("score")
	email, _ := def.Property("email")
	name, _ := def.Property("name")

	cases := []struct {
		label string
		prop  PropertyDefinition
		value any
		ok    bool
	}{
		{"choice ok", tier, "gold", true},
		{"choice bad", tier, "bronze", false},
		{"rating in range", score, 4.0, true},
		{"rating int in range", score, 3, true},
		{"rating out of range", score, 9.0, false},
		{"email ok", email, "ada@example.com", true},
		{"email bad", email, "not-an-email", false},
		{"optional empty", email, nil, true},
		{"required empty", name, "", false},
		{"text wrong kind", name, 12.0, false},
		{"date ok", PropertyDefinition{ID: "d", Type: PropDate}, "2024-03-01", true},
		{"date bad", PropertyDefinition{ID: "d", Type: PropDate}, "March 1st", false},
		{"checkbox", PropertyDefinition{ID: "c", Type: PropCheckbox}, true, true},
		{"multiselect", PropertyDefinition{ID: "m", Type: PropMultiselect, Options: []any{"a", "b"}}, []any{"a", "b"}, true},
		{"multiselect bad", PropertyDefinition{ID: "m", Type: PropMultiselect, Options: []any{"a", "b"}}, []any{"a", "z"}, false},
	}
	for _, tc := range cases {
		err := tc.prop.ValidateValue(tc.value)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.label, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.label)
		}
	}
}

func TestValidateData(t *testing.T) {
	def := contactType()
	ok := []BitData{{PropertyID: "name", Value: "Ada"}, {PropertyID: "tier", Value: "gold"}}
	if err := ValidateData(def, ok); err != nil {
		t.Fatalf("valid data rejected: %v", err)
	}
	if err := ValidateData(def, []BitData{{PropertyID: "tier", Value: "gold"}}); err == nil {
		t.Error("missing required property should fail")
	}
	if err := ValidateData(def, append(ok, BitData{PropertyID: "ghost", Value: "x"})); err == nil {
		t.Error("unknown property should fail")
	}
	if err := ValidateData(def, append(ok, BitData{PropertyID: "name", Value: "Bob"})); err == nil {
		t.Error("repeated property should fail")
	}
}

func TestBitMatchesAndTitle(t *testing.T) {
	b := Bit{
		ID:   "b1",
		Type: contactType(),
		Data: []BitData{{PropertyID: "name", Value: "Ada Lovelace"}, {PropertyID: "score", Value: 5.0}},
		Notes: []Note{{ID: "n1", Content: "Met at the Analytical Engine demo"}},
	}
	if b.Title() != "Ada Lovelace" {
		t.Errorf("title = %q", b.Title())
	}
	for _, q := range []string{"", "lovelace", "CONTACT", "analytical", "5"} {
		if !b.Matches(q) {
			t.Errorf("expected match for %q", q)
		}
	}
	if b.Matches("babbage") {
		t.Error("unexpected match")
	}
}

func TestCloneSharesNothing(t *testing.T) {
	b := Bit{ID: "b1", Type: contactType(), Data: []BitData{{PropertyID: "name", Value: "Ada"}}}
	c := b.Clone()
	c.Data[0].Value = "Grace"
	c.Type.Properties[0].Name = "Changed"
	c.Type.Properties[2].Options[0] = "platinum"
	if b.Data[0].Value != "Ada" || b.Type.Properties[0].Name != "Name" || b.Type.Properties[2].Options[0] != "gold" {
		t.Error("clone mutated the original")
	}
}

func TestCollectionValidate(t *testing.T) {
	c := Collection{ID: "c1", Name: "Reading", IconName: "book", Items: []CollectionItem{{ID: "i1", BitID: "b1"}, {ID: "i1", BitID: "b2"}}}
	if err := c.Validate(); err == nil {
		t.Error("duplicate item id should fail")
	}
	c.Items[1].ID = "i2"
	if err := c.Validate(); err != nil {
		t.Fatalf("valid collection rejected: %v", err)
	}
	c.NormalizeOrder()
	if c.Items[0].OrderIndex != 0 || c.Items[1].OrderIndex != 1 {
		t.Errorf("order not normalized: %+v", c.Items)
	}
	if !c.Contains("b2") || c.Contains("b3") {
		t.Error("Contains mismatch")
	}

	if err := (Collection{ID: "c2", IconName: "book"}).Validate(); err == nil {
		t.Error("missing name should fail")
	}
	if err := (Collection{ID: "c2", Name: "Reading"}).Validate(); err == nil {
		t.Error("missing icon should fail")
	}
}
