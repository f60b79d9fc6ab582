// Package signatures provides the signature verifiers shipped with the
// library: a content-signature verifier backed by an X.509 certificate chain
// and a no-op verifier for hosts that explicitly opt out of verification.
package signatures

// CertificateError is a failure to acquire or validate the signing
// certificate chain.
type CertificateError struct {
	Name  string
	Cause error
}

func (e *CertificateError) Error() string { return e.Name }

func (e *CertificateError) Unwrap() error { return e.Cause }

// VerificationError is an operational failure while checking the signature,
// e.g. an unsupported key type.
type VerificationError struct {
	Name  string
	Cause error
}

func (e *VerificationError) Error() string { return e.Name }

func (e *VerificationError) Unwrap() error { return e.Cause }

// InvalidSignatureError means the signature material is absent, malformed, or
// does not match the records.
type InvalidSignatureError struct {
	Name  string
	Cause error
}

func (e *InvalidSignatureError) Error() string { return e.Name }

func (e *InvalidSignatureError) Unwrap() error { return e.Cause }
