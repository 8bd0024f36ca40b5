package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MonitorConfig is the protocol-specific configuration of a monitor. The set
// of implementations is closed: ICMPConfig, HTTPConfig, TCPConfig, SNMPConfig.
type MonitorConfig interface {
	Kind() MonitorKind
	// Validate enforces the protocol's bounds. It never mutates the config.
	Validate() error
	withDefaults() MonitorConfig
}

// Timeout bounds shared by all protocols, in seconds.
const (
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 60
)

// ICMPConfig configures an ICMP echo check.
type ICMPConfig struct {
	TimeoutSeconds  int `json:"timeout_seconds" yaml:"timeout_seconds"`
	PacketSizeBytes int `json:"packet_size_bytes" yaml:"packet_size_bytes"`
	Count           int `json:"count" yaml:"count"`
}

func (ICMPConfig) Kind() MonitorKind { return KindICMP }

func (c ICMPConfig) Validate() error {
	if err := validateTimeout(c.TimeoutSeconds); err != nil {
		return err
	}
	if c.PacketSizeBytes < 1 || c.PacketSizeBytes > 65500 {
		return fmt.Errorf("%w: icmp packet_size_bytes must be between 1 and 65500", ErrInvalidConfig)
	}
	if c.Count < 1 || c.Count > 20 {
		return fmt.Errorf("%w: icmp count must be between 1 and 20", ErrInvalidConfig)
	}
	return nil
}

func (c ICMPConfig) withDefaults() MonitorConfig {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 5
	}
	if c.PacketSizeBytes == 0 {
		c.PacketSizeBytes = 56
	}
	if c.Count == 0 {
		c.Count = 3
	}
	return c
}

// HTTPConfig configures an HTTP(S) request check.
type HTTPConfig struct {
	URL                string            `json:"url" yaml:"url"`
	Method             string            `json:"method" yaml:"method"`
	Headers            map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body               string            `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectedStatusCode int               `json:"expected_status_code" yaml:"expected_status_code"`
	TimeoutSeconds     int               `json:"timeout_seconds" yaml:"timeout_seconds"`
	ValidateTLS        *bool             `json:"validate_tls" yaml:"validate_tls"`
}

func (HTTPConfig) Kind() MonitorKind { return KindHTTP }

// TLSVerify reports whether certificate verification is enabled. Unset means true.
func (c HTTPConfig) TLSVerify() bool {
	return c.ValidateTLS == nil || *c.ValidateTLS
}

func (c HTTPConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: http url must be an absolute URL", ErrInvalidConfig)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: http url must have http or https scheme", ErrInvalidConfig)
	}
	switch c.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
	default:
		return fmt.Errorf("%w: http method %q is not supported", ErrInvalidConfig, c.Method)
	}
	if c.ExpectedStatusCode < 100 || c.ExpectedStatusCode > 599 {
		return fmt.Errorf("%w: http expected_status_code must be between 100 and 599", ErrInvalidConfig)
	}
	return validateTimeout(c.TimeoutSeconds)
}

func (c HTTPConfig) withDefaults() MonitorConfig {
	if c.Method == "" {
		c.Method = http.MethodGet
	}
	c.Method = strings.ToUpper(c.Method)
	if c.ExpectedStatusCode == 0 {
		c.ExpectedStatusCode = http.StatusOK
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
	if c.ValidateTLS == nil {
		v := true
		c.ValidateTLS = &v
	}
	return c
}

// TCPConfig configures a TCP connect check against the device address.
type TCPConfig struct {
	Port           int `json:"port" yaml:"port"`
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

func (TCPConfig) Kind() MonitorKind { return KindTCP }

func (c TCPConfig) Validate() error {
	if err := validatePort(c.Port); err != nil {
		return err
	}
	return validateTimeout(c.TimeoutSeconds)
}

func (c TCPConfig) withDefaults() MonitorConfig {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 5
	}
	return c
}

// SNMP protocol versions.
const (
	SNMPVersion1  = "1"
	SNMPVersion2c = "2c"
	SNMPVersion3  = "3"
)

// SNMPConfig configures an SNMP GET of one or more OIDs.
type SNMPConfig struct {
	Community      string   `json:"community" yaml:"community"`
	Version        string   `json:"version" yaml:"version"`
	Port           int      `json:"port" yaml:"port"`
	OIDs           []string `json:"oids" yaml:"oids"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds"`
	Retries        int      `json:"retries" yaml:"retries"`

	// SNMPv3 USM parameters.
	Username       string `json:"username,omitempty" yaml:"username,omitempty"`
	AuthProtocol   string `json:"auth_protocol,omitempty" yaml:"auth_protocol,omitempty"`
	AuthPassphrase string `json:"auth_passphrase,omitempty" yaml:"auth_passphrase,omitempty"`
	PrivProtocol   string `json:"priv_protocol,omitempty" yaml:"priv_protocol,omitempty"`
	PrivPassphrase string `json:"priv_passphrase,omitempty" yaml:"priv_passphrase,omitempty"`
}

func (SNMPConfig) Kind() MonitorKind { return KindSNMP }

var (
	snmpAuthProtocols = map[string]bool{"MD5": true, "SHA": true, "SHA224": true, "SHA256": true, "SHA384": true, "SHA512": true}
	snmpPrivProtocols = map[string]bool{"DES": true, "AES": true, "AES192": true, "AES256": true}
)

func (c SNMPConfig) Validate() error {
	switch c.Version {
	case SNMPVersion1, SNMPVersion2c:
		if c.Community == "" {
			return fmt.Errorf("%w: snmp community is required for version %s", ErrInvalidConfig, c.Version)
		}
	case SNMPVersion3:
		if c.Username == "" {
			return fmt.Errorf("%w: snmp username is required for version 3", ErrInvalidConfig)
		}
		if c.AuthProtocol != "" && !snmpAuthProtocols[c.AuthProtocol] {
			return fmt.Errorf("%w: snmp auth_protocol %q is not supported", ErrInvalidConfig, c.AuthProtocol)
		}
		if c.PrivProtocol != "" {
			if !snmpPrivProtocols[c.PrivProtocol] {
				return fmt.Errorf("%w: snmp priv_protocol %q is not supported", ErrInvalidConfig, c.PrivProtocol)
			}
			if c.AuthProtocol == "" {
				return fmt.Errorf("%w: snmp priv_protocol requires auth_protocol", ErrInvalidConfig)
			}
		}
	default:
		return fmt.Errorf("%w: snmp version must be 1, 2c, or 3", ErrInvalidConfig)
	}
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if len(c.OIDs) == 0 {
		return fmt.Errorf("%w: snmp requires at least one oid", ErrInvalidConfig)
	}
	for _, oid := range c.OIDs {
		if !validOID(oid) {
			return fmt.Errorf("%w: snmp oid %q is not a dotted numeric OID", ErrInvalidConfig, oid)
		}
	}
	if c.Retries < 0 || c.Retries > 5 {
		return fmt.Errorf("%w: snmp retries must be between 0 and 5", ErrInvalidConfig)
	}
	return validateTimeout(c.TimeoutSeconds)
}

func (c SNMPConfig) withDefaults() MonitorConfig {
	if c.Version == "" {
		c.Version = SNMPVersion2c
	}
	if c.Port == 0 {
		c.Port = 161
	}
	if c.Community == "" && c.Version != SNMPVersion3 {
		c.Community = "public"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 5
	}
	c.AuthProtocol = strings.ToUpper(c.AuthProtocol)
	c.PrivProtocol = strings.ToUpper(c.PrivProtocol)
	return c
}

// WithDefaults fills unset fields of cfg with the protocol defaults.
func WithDefaults(cfg MonitorConfig) MonitorConfig {
	if cfg == nil {
		return nil
	}
	return cfg.withDefaults()
}

// DecodeMonitorConfig decodes raw JSON into the config type selected by kind
// and applies defaults. Unknown fields are rejected. An empty payload yields
// the defaults for the kind.
func DecodeMonitorConfig(kind MonitorKind, raw json.RawMessage) (MonitorConfig, error) {
	var cfg MonitorConfig
	switch kind {
	case KindICMP:
		var c ICMPConfig
		if err := decodeStrict(raw, &c); err != nil {
			return nil, err
		}
		cfg = c
	case KindHTTP:
		var c HTTPConfig
		if err := decodeStrict(raw, &c); err != nil {
			return nil, err
		}
		cfg = c
	case KindTCP:
		var c TCPConfig
		if err := decodeStrict(raw, &c); err != nil {
			return nil, err
		}
		cfg = c
	case KindSNMP:
		var c SNMPConfig
		if err := decodeStrict(raw, &c); err != nil {
			return nil, err
		}
		cfg = c
	default:
		return nil, fmt.Errorf("%w: unknown monitor type %q", ErrInvalidConfig, kind)
	}
	return cfg.withDefaults(), nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func validateTimeout(sec int) error {
	if sec < MinTimeoutSeconds || sec > MaxTimeoutSeconds {
		return fmt.Errorf("%w: timeout_seconds must be between %d and %d", ErrInvalidConfig, MinTimeoutSeconds, MaxTimeoutSeconds)
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidConfig)
	}
	return nil
}

func validOID(oid string) bool {
	oid = strings.TrimPrefix(oid, ".")
	parts := strings.Split(oid, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 32); err != nil {
			return false
		}
	}
	return true
}
