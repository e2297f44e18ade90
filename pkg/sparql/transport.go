package sparql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransportCause is a coarse reason for a failed network call.
type TransportCause string

const (
	CauseNone              TransportCause = ""
	CauseTimeout           TransportCause = "timeout"
	CauseDNS               TransportCause = "dns"
	CauseConnectionRefused TransportCause = "connection_refused"
	CauseConnectionReset   TransportCause = "connection_reset"
	CauseTLS               TransportCause = "tls"
	CauseNetwork           TransportCause = "network"
)

// ClassifyTransportError maps a client error to a TransportCause.
func ClassifyTransportError(err error) TransportCause {
	if err == nil {
		return CauseNone
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CauseDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return CauseConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return CauseConnectionReset
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) || errors.As(err, &unknownAuth) {
		return CauseTLS
	}

	// Some platforms only surface these as text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return CauseConnectionRefused
	case strings.Contains(msg, "connection reset"):
		return CauseConnectionReset
	case strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:"):
		return CauseTLS
	}
	return CauseNetwork
}
