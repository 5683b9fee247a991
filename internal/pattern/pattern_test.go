package pattern

import "testing"

func TestSensitiveFileMatches(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"upload .env", true},
		{"cat .env.production", true},
		{"deploy secrets.yaml to cluster", true},
		{"load credentials.json", true},
		{"open server.pem", true},
		{"copy id_rsa to remote", true},
		{"update ~/.aws/credentials", true},
		{"edit service-account-prod.json", true},
		{"change the admin password", true},
		{"read README.md", false},
		{"list files in /tmp", false},
	}

	for _, tc := range cases {
		if got := MatchesAny(tc.text, SensitiveFile); got != tc.want {
			t.Errorf("SensitiveFile match %q = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestDatabaseMatches(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"run schema.sql", true},
		{"open app.sqlite3", true},
		{"postgres://user@host/db", true},
		{"DROP TABLE users", true},
		{"drop table users", true},
		{"DELETE FROM sessions", true},
		{"INSERT INTO accounts", true},
		{"SELECT id FROM users", true},
		{"apply migrations/0001_init.sql", true},
		{"echo hello", false},
	}

	for _, tc := range cases {
		if got := MatchesAny(tc.text, Database); got != tc.want {
			t.Errorf("Database match %q = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestAPIMatches(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"POST https://api.example.com/users", true},
		{"curl -X GET http://localhost:8080", true},
		{"requests.get(url)", true},
		{"call /api/v2/orders", true},
		{"send graphql mutation", true},
		{"register webhook handler", true},
		{"write result to disk", false},
	}

	for _, tc := range cases {
		if got := MatchesAny(tc.text, API); got != tc.want {
			t.Errorf("API match %q = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestSystemCommandMatches(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"rm -rf /tmp/build", true},
		{"rm -r ./cache", true},
		{"sudo systemctl restart nginx", true},
		{"chmod 600 key", true},
		{"apt install curl", true},
		{"pip install requests", true},
		{"kill -9 1234", true},
		{"ssh deploy@prod-1", true},
		{"format the document", false},
		{"confirm removal of record", false},
	}

	for _, tc := range cases {
		if got := MatchesAny(tc.text, SystemCommand); got != tc.want {
			t.Errorf("SystemCommand match %q = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestReadOnlyMatches(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"cat config.yaml", true},
		{"tail -f app.log", true},
		{"grep TODO main.go", true},
		{"ls -la /var", true},
		{"SELECT name FROM users", true},
		{"open('data.txt', 'r')", true},
		{"rm -rf /", false},
		{"update user record", false},
	}

	for _, tc := range cases {
		if got := MatchesAny(tc.text, ReadOnly); got != tc.want {
			t.Errorf("ReadOnly match %q = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestMatchingRulesReturnsNames(t *testing.T) {
	names := MatchingRules("sudo rm -rf /var/cache", SystemCommand)
	if len(names) < 2 {
		t.Fatalf("expected at least 2 matching rules, got %v", names)
	}

	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["rm recursive"] || !found["sudo"] {
		t.Errorf("expected 'rm recursive' and 'sudo' in %v", names)
	}
}

func TestMatchingRulesEmptyOnNoMatch(t *testing.T) {
	if names := MatchingRules("say hello", Database); names != nil {
		t.Errorf("expected nil, got %v", names)
	}
}
