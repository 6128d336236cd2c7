package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/crypto"
)

// Driver names understood by the datasource registry.
const (
	DriverFirebird = "firebird"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMSSQL    = "mssql"
)

// PasswordOnlyEntry is the identity granted by a password-only override.
type PasswordOnlyEntry struct {
	Username string `yaml:"username" json:"username"`
	ID       string `yaml:"id" json:"id"`
}

// Profile holds the connection parameters of one accounting installation.
type Profile struct {
	Name       string `yaml:"-" json:"name"`
	Driver     string `yaml:"driver" json:"driver"`
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	Database   string `yaml:"database" json:"database"`
	User       string `yaml:"user" json:"user"`
	Password   string `yaml:"password" json:"-"`
	Charset    string `yaml:"charset" json:"charset,omitempty"`
	Role       string `yaml:"role" json:"role,omitempty"`
	LocationID int64  `yaml:"location_id" json:"location_id,omitempty"`
	StorageID  int64  `yaml:"storage_id" json:"storage_id,omitempty"`
	DocTypeID  int64  `yaml:"doc_type" json:"doc_type,omitempty"`

	// HashScheme forces the password hash scheme (plain, md5, sha1, sha256, bcrypt).
	// Empty means the scheme is inferred from each stored value.
	HashScheme string `yaml:"hash_scheme" json:"hash_scheme,omitempty"`

	// SchemaDump overrides the bundled metadata dump used when live discovery fails.
	SchemaDump string `yaml:"schema_dump" json:"schema_dump,omitempty"`

	// PasswordOnly maps a password to an identity, valid for this profile only.
	PasswordOnly map[string]PasswordOnlyEntry `yaml:"password_only" json:"-"`

	// Mapping maps an invoice barcode, supplier code or description to a catalog
	// item code. Lines no catalog lookup can place fall back to it.
	Mapping map[string]string `yaml:"mapping" json:"-"`
}

// LookupPasswordOnly returns the override identity for password, if configured.
// Trailing whitespace of the supplied password is ignored.
func (p *Profile) LookupPasswordOnly(password string) (PasswordOnlyEntry, bool) {
	if p == nil || len(p.PasswordOnly) == 0 {
		return PasswordOnlyEntry{}, false
	}
	entry, ok := p.PasswordOnly[strings.TrimRight(password, " \t\r\n")]
	return entry, ok
}

// HasPasswordOnly reports whether any password-only override is configured.
func (p *Profile) HasPasswordOnly() bool {
	return p != nil && len(p.PasswordOnly) > 0
}

// DatasourceConfig returns the adapter configuration map for this profile.
func (p *Profile) DatasourceConfig() map[string]any {
	return map[string]any{
		"host":     ResolveHostForDocker(p.Host),
		"port":     p.Port,
		"database": p.Database,
		"user":     p.User,
		"password": p.Password,
		"charset":  p.Charset,
		"role":     p.Role,
	}
}

func (p *Profile) applyDefaults() {
	if p.Driver == "" {
		p.Driver = DriverFirebird
	}
	p.Driver = strings.ToLower(p.Driver)

	switch p.Driver {
	case DriverFirebird:
		if p.Host == "" {
			p.Host = "localhost"
		}
		if p.Port == 0 {
			p.Port = 3050
		}
		if p.User == "" {
			p.User = "SYSDBA"
		}
		if p.Password == "" {
			p.Password = "masterkey"
		}
		if p.Charset == "" {
			p.Charset = "WIN1251"
		}
	case DriverPostgres:
		if p.Host == "" {
			p.Host = "localhost"
		}
		if p.Port == 0 {
			p.Port = 5432
		}
	case DriverMSSQL:
		if p.Host == "" {
			p.Host = "localhost"
		}
		if p.Port == 0 {
			p.Port = 1433
		}
	}
}

func (p *Profile) validate() error {
	if p.Database == "" {
		return fmt.Errorf("profile %q: database is required", p.Name)
	}
	for key, code := range p.Mapping {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(code) == "" {
			return fmt.Errorf("profile %q: mapping entries need a key and an item code", p.Name)
		}
	}
	switch p.Driver {
	case DriverFirebird, DriverSQLite, DriverPostgres, DriverMSSQL:
	default:
		return fmt.Errorf("profile %q: unsupported driver %q", p.Name, p.Driver)
	}
	return nil
}

// ProfileRegistry maps profile names to connection profiles. Read-only after load.
type ProfileRegistry struct {
	profiles map[string]*Profile
}

type profilesFile struct {
	Profiles map[string]*Profile `yaml:"profiles"`
}

// LoadProfiles reads the registry file at path. JSON files are accepted too.
// box opens sealed passwords and may be nil when none are sealed.
func LoadProfiles(path string, box *crypto.SecretBox) (*ProfileRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles %s: %w", path, err)
	}
	return ParseProfiles(data, box)
}

// ParseProfiles decodes a registry document.
func ParseProfiles(data []byte, box *crypto.SecretBox) (*ProfileRegistry, error) {
	var doc profilesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	profiles := make([]*Profile, 0, len(doc.Profiles))
	for name, p := range doc.Profiles {
		if p == nil {
			p = &Profile{}
		}
		p.Name = name
		if err := revealSecrets(p, box); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return NewProfileRegistry(profiles...)
}

func revealSecrets(p *Profile, box *crypto.SecretBox) error {
	password, err := crypto.Reveal(box, p.Password)
	if err != nil {
		return fmt.Errorf("profile %q password: %w", p.Name, err)
	}
	p.Password = password

	if len(p.PasswordOnly) == 0 {
		return nil
	}
	revealed := make(map[string]PasswordOnlyEntry, len(p.PasswordOnly))
	for key, entry := range p.PasswordOnly {
		plain, err := crypto.Reveal(box, key)
		if err != nil {
			return fmt.Errorf("profile %q password_only: %w", p.Name, err)
		}
		revealed[plain] = entry
	}
	p.PasswordOnly = revealed
	return nil
}

// NewProfileRegistry builds a registry, applying driver defaults to each profile.
func NewProfileRegistry(profiles ...*Profile) (*ProfileRegistry, error) {
	r := &ProfileRegistry{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		p.applyDefaults()
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.profiles[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %q", p.Name)
		}
		r.profiles[p.Name] = p
	}
	return r, nil
}

// Get returns the named profile.
func (r *ProfileRegistry) Get(name string) (*Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProfileNotFound, name)
	}
	return p, nil
}

// Names returns profile names sorted alphabetically.
func (r *ProfileRegistry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of profiles.
func (r *ProfileRegistry) Len() int {
	return len(r.profiles)
}
