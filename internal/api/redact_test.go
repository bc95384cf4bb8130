package api

import "testing"

func TestRedactCommandLine(t *testing.T) {
	cases := map[string]string{
		"":                                         "",
		"ping -t 127.0.0.1":                        "ping -t 127.0.0.1",
		"app --db-password=hunter2 --port 80":      "app --db-password=[redacted] --port 80",
		"app --token abc123 -v":                    "app --token [redacted] -v",
		"env API_KEY=abc123 ./run":                 "env API_KEY=[redacted] ./run",
		`app --client-secret="s3cr3t"`:             `app --client-secret="[redacted]"`,
		"app --token-file /etc/token --verbose":    "app --token-file [redacted] --verbose",
		"app --password --other":                   "app --password --other",
	}
	for in, want := range cases {
		if got := RedactCommandLine(in); got != want {
			t.Fatalf("RedactCommandLine(%q) = %q, want %q", in, got, want)
		}
	}
}
