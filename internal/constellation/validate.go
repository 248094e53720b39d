package constellation

import (
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"feditest/internal/driver"
)

var hostLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidHostname reports whether s is a DNS hostname or IP address,
// optionally followed by a port.
func ValidHostname(s string) bool {
	host := s
	if h, port, err := net.SplitHostPort(s); err == nil {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return false
		}
		host = h
	}
	if net.ParseIP(host) != nil {
		return true
	}
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if !hostLabel.MatchString(label) {
			return false
		}
	}
	return true
}

// validateNodeConfig checks the driver independent parts of a node
// configuration and returns every problem found.
func validateNodeConfig(role string, cfg driver.NodeConfig) []error {
	var errs []error
	field := func(name string) string { return "roles." + role + ".config." + name }

	if cfg.Domain != "" && !ValidHostname(cfg.Domain) {
		errs = append(errs, driver.NewConfigError(field("domain"), "invalid hostname %q", cfg.Domain))
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, driver.NewConfigError(field("rate_limit"), "must not be negative"))
	}
	if cfg.Burst < 0 {
		errs = append(errs, driver.NewConfigError(field("burst"), "must not be negative"))
	}

	seen := make(map[string]bool)
	check := func(kind string, i int, a driver.Account) {
		name := fmt.Sprintf("%s[%d]", field(kind), i)
		if a.ID == "" {
			errs = append(errs, driver.NewConfigError(name, "account id is required"))
		} else if seen[a.ID] {
			errs = append(errs, driver.NewConfigError(name, "duplicate account id %q", a.ID))
		}
		seen[a.ID] = true
		if strings.ContainsAny(a.Role, " \t\r\n") {
			errs = append(errs, driver.NewConfigError(name+".role", "account role %q must not contain whitespace", a.Role))
		}
		if a.URI != "" {
			if u, err := url.Parse(a.URI); err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
				errs = append(errs, driver.NewConfigError(name+".uri", "invalid URI %q", a.URI))
			}
		}
		if a.Email != "" {
			if _, err := mail.ParseAddress(a.Email); err != nil {
				errs = append(errs, driver.NewConfigError(name+".email", "invalid email %q", a.Email))
			}
		}
	}
	for i, a := range cfg.Accounts {
		check("accounts", i, a)
	}
	for i, a := range cfg.NonExistingAccounts {
		check("non_existing_accounts", i, a)
	}
	return errs
}
