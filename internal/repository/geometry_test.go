package repository

import "testing"

func TestDecodeGeometry(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"polygon", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`, "Polygon", false},
		{"multipolygon", `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`, "MultiPolygon", false},
		{"point rejected", `{"type":"Point","coordinates":[0,0]}`, "", true},
		{"garbage", `{"type":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := DecodeGeometry([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeGeometry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == "" {
				if g != nil {
					t.Errorf("DecodeGeometry() = %v, want nil", g)
				}
				return
			}
			if g == nil || g.GeoJSONType() != tt.want {
				t.Errorf("DecodeGeometry() = %v, want %s", g, tt.want)
			}
		})
	}
}
