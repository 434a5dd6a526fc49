package s3blob

import "testing"

func TestResolveEndpoint(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		useSSL   bool
		want     string
	}{
		{"scheme kept as-is", "https://minio.local:9000", false, "https://minio.local:9000"},
		{"http scheme kept", "http://minio.local:9000", true, "http://minio.local:9000"},
		{"bare host gets https", "minio.local:9000", true, "https://minio.local:9000"},
		{"bare host gets http", "minio.local:9000", false, "http://minio.local:9000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveEndpoint(tc.endpoint, tc.useSSL); got != tc.want {
				t.Errorf("resolveEndpoint(%q, %v) = %q, want %q", tc.endpoint, tc.useSSL, got, tc.want)
			}
		})
	}
}
