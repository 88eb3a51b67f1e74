package matcher

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Unit Name", "unit_name"},
		{"  Qty (pcs) ", "qty_pcs"},
		{"production_qty", "production_qty"},
		{"Buyer-Name", "buyer_name"},
		{"%%%", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		header string
		field  string
		want   float64
	}{
		{"exact", "unit_name", "unit_name", 1.0},
		{"substring", "unit_name", "name", 0.6},
		{"substring reverse", "qty", "order_qty", 0.6},
		{"token overlap", "buyer_order_date", "order_id", 0.1},
		{"two token overlap", "buyer_order_date", "date_of_order", 0.2},
		{"no signal", "color", "status", 0},
		{"empty", "", "name", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.header, tt.field); got != tt.want {
				t.Errorf("Score(%q, %q) = %v, want %v", tt.header, tt.field, got, tt.want)
			}
		})
	}
}

func TestSuggest(t *testing.T) {
	headers := []string{"Unit Name", "Qty", "Mystery"}
	fields := []string{"id", "name", "qty"}

	got := Suggest(headers, fields, map[string][]interface{}{
		"Unit Name": {"Box", "Pallet"},
	})

	if s := got["Unit Name"]; s.Field != "name" || s.Confidence != 0.6 {
		t.Errorf("Unit Name suggestion = %+v, want name/0.6", s)
	}
	if len(got["Unit Name"].SampleValues) != 2 {
		t.Errorf("sample values not passed through: %+v", got["Unit Name"])
	}
	if s := got["Qty"]; s.Field != "qty" || s.Confidence != 1.0 {
		t.Errorf("Qty suggestion = %+v, want qty/1.0", s)
	}
	if s := got["Mystery"]; s.Field != "" || s.Confidence != 0 {
		t.Errorf("Mystery should have no suggestion, got %+v", s)
	}
}

func TestSuggestConfidenceBounds(t *testing.T) {
	headers := []string{"a b c d e f g h i j k l", "plain"}
	fields := []string{"a_b_c_d_e_f_g_h_i_j_k_l_m_n", "zz"}

	for header, s := range Suggest(headers, fields, nil) {
		if s.Confidence < 0 || s.Confidence > 1 {
			t.Errorf("confidence out of range for %q: %v", header, s.Confidence)
		}
		if s.Field != "" && s.Field != fields[0] && s.Field != fields[1] {
			t.Errorf("suggested field not in field set: %q", s.Field)
		}
	}
}

func TestSuggestTieKeepsFirstField(t *testing.T) {
	// Both fields contain the header, so both score 0.6; first-seen wins.
	got := Suggest([]string{"name"}, []string{"first_name", "last_name"}, nil)
	if got["name"].Field != "first_name" {
		t.Errorf("tie should keep first-seen field, got %q", got["name"].Field)
	}
}
