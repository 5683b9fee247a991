// Package pattern holds the static rule sets used to recognize sensitive
// files, database activity, external API calls, dangerous system commands,
// and read-only operations. Rule sets are compiled once at init and never
// mutated at runtime.
package pattern

import "regexp"

// Rule is a single named, case-insensitive matching rule.
type Rule struct {
	Name string
	re   *regexp.Regexp
}

// Matches reports whether the rule matches anywhere in text.
func (r Rule) Matches(text string) bool {
	return r.re.MatchString(text)
}

// Expr returns the rule's regular expression source.
func (r Rule) Expr() string {
	return r.re.String()
}

func rule(name, expr string) Rule {
	return Rule{Name: name, re: regexp.MustCompile(`(?i)` + expr)}
}

// MatchesAny reports whether text matches any rule in the set.
func MatchesAny(text string, rules []Rule) bool {
	for _, r := range rules {
		if r.Matches(text) {
			return true
		}
	}
	return false
}

// MatchingRules returns the names of every rule in the set that matches text.
func MatchingRules(text string, rules []Rule) []string {
	var names []string
	for _, r := range rules {
		if r.Matches(text) {
			names = append(names, r.Name)
		}
	}
	return names
}

// SensitiveFile matches files that carry credentials, secrets, or
// security-sensitive configuration.
var SensitiveFile = []Rule{
	rule("env file", `\.env($|\..*)`),
	rule("env local", `\.env\.local`),
	rule("env production", `\.env\.production`),
	rule("secrets config", `secrets?\.(ya?ml|json|toml)`),
	rule("credentials config", `credentials?\.(ya?ml|json|toml)`),
	rule("production config", `config\.prod(uction)?\.(ya?ml|json|toml)`),

	rule("pem key", `\.pem$`),
	rule("key file", `\.key$`),
	rule("p12 keystore", `\.p12$`),
	rule("pfx keystore", `\.pfx$`),
	rule("ssh rsa key", `id_rsa`),
	rule("ssh ed25519 key", `id_ed25519`),
	rule("rsa key suffix", `_rsa$`),

	rule("aws credentials", `\.aws/credentials`),
	rule("aws config", `\.aws/config`),
	rule("gcloud key", `gcloud.*\.json`),
	rule("service account key", `service[-_]?account.*\.json`),

	rule("password file", `password`),
	rule("token file", `token.*\.txt`),
	rule("netrc", `\.netrc`),
	rule("npmrc", `\.npmrc`),
	rule("pypirc", `\.pypirc`),

	rule("database config", `database\.ya?ml`),
	rule("db config", `db\.config\.(js|ts|json)`),

	rule("kubernetes secret", `secret.*\.ya?ml`),
}

// Database matches database files, connection strings, and SQL statements.
var Database = []Rule{
	rule("sql file", `\.sql$`),

	rule("db file", `\.db$`),
	rule("sqlite file", `\.sqlite3?$`),
	rule("mdb file", `\.mdb$`),

	rule("connection string", `(postgres|postgresql|mysql|mongodb|redis|sqlite)://`),
	rule("ddl statement", `(DROP|TRUNCATE|ALTER)\s+(TABLE|DATABASE|SCHEMA)`),
	rule("delete statement", `DELETE\s+FROM\s+\w+`),
	rule("insert/update statement", `(INSERT|UPDATE)\s+INTO`),
	rule("select statement", `SELECT\s+.*\s+FROM\s+\w+`),

	rule("migration path", `migrations?/.*\.(sql|py|rb|js|ts)`),
	rule("migration file", `migration.*\.(sql|py|rb|js|ts)`),
}

// API matches calls to external services over HTTP.
var API = []Rule{
	rule("http method url", `(GET|POST|PUT|DELETE|PATCH)\s+https?://`),
	rule("fetch call", `fetch\s*\(\s*['"]https?://`),
	rule("axios call", `axios\.(get|post|put|delete|patch)`),
	rule("requests call", `requests?\.(get|post|put|delete|patch)`),
	rule("http request", `http\.request`),
	rule("curl", `curl\s+`),

	rule("versioned api path", `/api/v\d+/`),
	rule("api host", `api\..*\.com`),
	rule("graphql", `graphql`),
	rule("webhook", `webhook`),
}

// SystemCommand matches shell commands that can modify or damage the system.
var SystemCommand = []Rule{
	rule("rm recursive", `\brm\s+-rf?\b`),
	rule("rmdir", `\brmdir\b`),
	rule("windows del", `\bdel\s+/[sfq]`),

	rule("chmod", `\bchmod\b`),
	rule("chown", `\bchown\b`),
	rule("sudo", `\bsudo\b`),
	rule("su dash", `\bsu\s+-`),

	rule("package manager", `\b(apt|yum|dnf|pacman|brew)\s+(install|remove|purge)`),
	rule("pip install", `\bpip\s+install\b`),
	rule("npm global", `\bnpm\s+(install|uninstall)\s+-g`),

	rule("kill", `\bkill\s+-9?\b`),
	rule("killall", `\bkillall\b`),
	rule("systemctl", `\bsystemctl\s+(stop|restart|disable)`),

	rule("iptables", `\biptables\b`),
	rule("netstat", `\bnetstat\b`),
	rule("ssh remote", `\bssh\b.*@`),
}

// ReadOnly matches operations that are typically safe to perform.
var ReadOnly = []Rule{
	rule("cat", `\bcat\s+`),
	rule("less", `\bless\s+`),
	rule("head", `\bhead\s+`),
	rule("tail", `\btail\s+`),
	rule("grep", `\bgrep\s+`),
	rule("find", `\bfind\s+`),
	rule("ls", `\bls\s+`),
	rule("pwd", `\bpwd\b`),
	rule("whoami", `\bwhoami\b`),
	rule("select statement", `SELECT\s+.*\s+FROM`),
	rule("read call", `\.read\(`),
	rule("open read mode", `open\(.*,\s*['"]r['"]`),
}
