package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	utls "github.com/refraction-networking/utls"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/finding"
	"github.com/khanhnv2901/secora/internal/shared/constants"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// versionSSL30 is the legacy SSL 3.0 protocol version (0x0300).
const versionSSL30 uint16 = 0x0300

// msgNoCertificate is reported when the handshake completes without a peer certificate.
const msgNoCertificate = "No certificate"

// TLS finding ids.
const (
	IDTLSProblem    = "tls-01"
	IDTLSExpiryNear = "tls-02"
)

// Fingerprint selects the client hello presented during inspection.
type Fingerprint string

const (
	// FingerprintStandard uses crypto/tls.
	FingerprintStandard Fingerprint = "standard"
	// FingerprintChrome mimics a desktop Chrome client hello via utls.
	FingerprintChrome Fingerprint = "chrome"
)

// ParseFingerprint maps a config string to a Fingerprint. Empty means standard.
func ParseFingerprint(s string) (Fingerprint, error) {
	switch Fingerprint(s) {
	case "", FingerprintStandard:
		return FingerprintStandard, nil
	case FingerprintChrome:
		return FingerprintChrome, nil
	}
	return "", fmt.Errorf("%w: unknown tls fingerprint %q", secerrors.ErrInvalidInput, s)
}

// CertificateInfo summarizes the leaf certificate presented by a TLS endpoint.
// OK is false when no certificate could be read; Error then says why.
type CertificateInfo struct {
	OK            bool     `json:"ok"`
	Subject       string   `json:"subject,omitempty"`
	Issuer        string   `json:"issuer,omitempty"`
	ValidFrom     string   `json:"validFrom,omitempty"`
	ValidTo       string   `json:"validTo,omitempty"`
	ExpiresInDays int      `json:"expiresInDays"`
	SerialNumber  string   `json:"serialNumber,omitempty"`
	DNSNames      []string `json:"dnsNames,omitempty"`
	TLSVersion    string   `json:"tlsVersion,omitempty"`
	SelfSigned    bool     `json:"selfSigned,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Inspector opens a single TLS connection per call and reports certificate metadata.
// Verification is disabled so expired or self-signed certificates are still reported.
type Inspector struct {
	Timeout     time.Duration
	Fingerprint Fingerprint
	Logger      *zap.Logger

	// now is overridable in tests.
	now func() time.Time
}

// NewInspector returns an Inspector with the default timeout.
func NewInspector(timeout time.Duration, fp Fingerprint, logger *zap.Logger) *Inspector {
	if timeout <= 0 {
		timeout = constants.TLSTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{Timeout: timeout, Fingerprint: fp, Logger: logger}
}

// Inspect connects to host:port and reads the leaf certificate. It never
// returns an error: failures are reported through CertificateInfo.OK/Error.
// Port 0 means 443.
func (i *Inspector) Inspect(ctx context.Context, host string, port int) CertificateInfo {
	if port == 0 {
		port = 443
	}
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = constants.TLSTimeout
	}
	logger := i.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Debug("tls dial failed", zap.String("addr", addr), zap.Error(err))
		return failedInfo(ctx, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	var (
		certs   []*x509.Certificate
		version uint16
	)
	switch i.Fingerprint {
	case FingerprintChrome:
		uconn := utls.UClient(conn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
		}, utls.HelloChrome_Auto)
		if err := uconn.HandshakeContext(ctx); err != nil {
			logger.Debug("utls handshake failed", zap.String("addr", addr), zap.Error(err))
			return failedInfo(ctx, err)
		}
		state := uconn.ConnectionState()
		certs, version = state.PeerCertificates, state.Version
	default:
		tconn := tls.Client(conn, &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, //nolint:gosec // inspection must see invalid certificates
			NextProtos:         []string{"http/1.1"},
		})
		if err := tconn.HandshakeContext(ctx); err != nil {
			logger.Debug("tls handshake failed", zap.String("addr", addr), zap.Error(err))
			return failedInfo(ctx, err)
		}
		state := tconn.ConnectionState()
		certs, version = state.PeerCertificates, state.Version
	}

	if len(certs) == 0 {
		return CertificateInfo{OK: false, Error: msgNoCertificate}
	}

	now := time.Now
	if i.now != nil {
		now = i.now
	}
	info := DescribeCertificate(certs[0], now())
	info.TLSVersion = tlsVersionString(version)
	return info
}

// DescribeCertificate extracts report metadata from cert as seen at now.
// ExpiresInDays rounds up, so a certificate expiring in 9.2 days reports 10.
func DescribeCertificate(cert *x509.Certificate, now time.Time) CertificateInfo {
	days := math.Ceil(cert.NotAfter.Sub(now).Hours() / 24)
	return CertificateInfo{
		OK:            true,
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		ValidFrom:     cert.NotBefore.UTC().Format(time.RFC3339),
		ValidTo:       cert.NotAfter.UTC().Format(time.RFC3339),
		ExpiresInDays: int(days),
		SerialNumber:  serialString(cert),
		DNSNames:      cert.DNSNames,
		SelfSigned:    cert.Subject.String() == cert.Issuer.String(),
	}
}

func serialString(cert *x509.Certificate) string {
	if cert.SerialNumber == nil {
		return ""
	}
	return fmt.Sprintf("%X", cert.SerialNumber)
}

func failedInfo(ctx context.Context, err error) CertificateInfo {
	if isTimeout(ctx, err) {
		return CertificateInfo{OK: false, Error: secerrors.ErrTLSTimeout.Error()}
	}
	return CertificateInfo{OK: false, Error: err.Error()}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CertificateFindings translates an inspection result into report findings.
// A failed inspection yields tls-01; a certificate within soonDays of expiry
// yields tls-02.
func CertificateFindings(info CertificateInfo, soonDays int) []finding.Finding {
	if !info.OK {
		reason := info.Error
		if reason == "" {
			reason = "unknown"
		}
		return []finding.Finding{{
			ID:          IDTLSProblem,
			Title:       "TLS/SSL problem",
			Severity:    finding.High,
			Description: fmt.Sprintf("TLS check failed: %s", reason),
			Remediation: "Ensure a valid certificate is installed and accessible.",
		}}
	}
	if info.ExpiresInDays <= soonDays {
		return []finding.Finding{{
			ID:          IDTLSExpiryNear,
			Title:       "Certificate expires soon",
			Severity:    finding.Medium,
			Description: fmt.Sprintf("Certificate expires in %d days.", info.ExpiresInDays),
			Remediation: "Renew the SSL/TLS certificate before expiry.",
		}}
	}
	return nil
}

// tlsVersionString converts TLS version constant to string
func tlsVersionString(version uint16) string {
	switch version {
	case 0:
		return ""
	case versionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}
