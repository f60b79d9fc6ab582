package signatures

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/settsync/settsync/pkg/client"
)

// signaturePrefix is prepended to the serialised records before hashing, so a
// content signature can never be confused with a signature over another
// protocol's payload.
const signaturePrefix = "Content-Signature:\x00"

const defaultFetchTimeout = 30 * time.Second

// ContentSignatureVerifier checks the detached ECDSA P-384 content signature
// carried in a snapshot's metadata. The metadata must hold a "signature"
// object with an "x5u" URL pointing at a PEM certificate chain and a
// base64url "signature" over the canonical serialisation of the records and
// the collection timestamp.
type ContentSignatureVerifier struct {
	httpClient *http.Client
	roots      *x509.CertPool
	logger     *logrus.Logger
}

// ContentSignatureOptions contains configuration options for
// ContentSignatureVerifier.
type ContentSignatureOptions struct {
	// HTTPClient fetches the x5u chain. Defaults to a 30s-timeout client.
	HTTPClient *http.Client
	// Roots pins the trust anchors for the chain. When nil, the chain's own
	// last certificate is used as the anchor, i.e. only the chain's internal
	// consistency is checked.
	Roots  *x509.CertPool
	Logger *logrus.Logger
}

// NewContentSignatureVerifier creates a verifier.
func NewContentSignatureVerifier(opts ContentSignatureOptions) *ContentSignatureVerifier {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultFetchTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &ContentSignatureVerifier{
		httpClient: opts.HTTPClient,
		roots:      opts.Roots,
		logger:     opts.Logger,
	}
}

// Verify checks the snapshot's records against the signature in its metadata.
func (v *ContentSignatureVerifier) Verify(ctx context.Context, collection *client.Collection) error {
	x5u, signature, err := signatureFields(collection.Metadata)
	if err != nil {
		return err
	}

	leaf, err := v.fetchAndValidateChain(ctx, x5u)
	if err != nil {
		return err
	}

	publicKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || publicKey.Curve != elliptic.P384() {
		return &VerificationError{Name: "signer public key is not ECDSA P-384"}
	}

	r, s, err := decodeSignature(signature, publicKey.Curve)
	if err != nil {
		return err
	}

	payload, err := serializeRecords(collection.Records, collection.Timestamp)
	if err != nil {
		return &VerificationError{Name: fmt.Sprintf("failed to serialize records: %s", err), Cause: err}
	}

	digest := sha512.Sum384(append([]byte(signaturePrefix), payload...))
	if !ecdsa.Verify(publicKey, digest[:], r, s) {
		return &InvalidSignatureError{Name: "content signature does not match records"}
	}

	v.logger.WithFields(logrus.Fields{
		"bucket":     collection.Bucket,
		"collection": collection.Collection,
		"records":    len(collection.Records),
	}).Debug("Content signature verified")
	return nil
}

// signatureFields extracts x5u and signature from the snapshot metadata.
func signatureFields(metadata map[string]interface{}) (x5u, signature string, err error) {
	sig, _ := metadata["signature"].(map[string]interface{})

	x5u, _ = sig["x5u"].(string)
	if x5u == "" {
		return "", "", &InvalidSignatureError{Name: "x5u field not present in signature"}
	}
	signature, _ = sig["signature"].(string)
	if signature == "" {
		return "", "", &InvalidSignatureError{Name: "signature field not present in signature"}
	}
	return x5u, signature, nil
}

// fetchAndValidateChain downloads the PEM chain at x5u, validates it and
// returns the leaf certificate.
func (v *ContentSignatureVerifier) fetchAndValidateChain(ctx context.Context, x5u string) (*x509.Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x5u, nil)
	if err != nil {
		return nil, &CertificateError{Name: fmt.Sprintf("invalid x5u %q: %s", x5u, err), Cause: err}
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, &CertificateError{Name: fmt.Sprintf("failed to fetch certificate chain from %q: %s", x5u, err), Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &CertificateError{Name: fmt.Sprintf("fetching certificate chain from %q returned %d", x5u, resp.StatusCode)}
	}
	pemBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &CertificateError{Name: fmt.Sprintf("failed to read certificate chain from %q: %s", x5u, err), Cause: err}
	}

	chain, err := parseChain(pemBytes)
	if err != nil {
		return nil, err
	}

	leaf := chain[0]
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	roots := v.roots
	if roots == nil {
		roots = x509.NewCertPool()
		roots.AddCert(chain[len(chain)-1])
	}

	if _, err := leaf.Verify(x509.VerifyOptions{
		Intermediates: intermediates,
		Roots:         roots,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, &CertificateError{Name: fmt.Sprintf("certificate chain is not trusted: %s", err), Cause: err}
	}
	return leaf, nil
}

// parseChain decodes every CERTIFICATE block of a PEM bundle, leaf first.
func parseChain(pemBytes []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, &CertificateError{Name: fmt.Sprintf("failed to parse certificate: %s", err), Cause: err}
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, &CertificateError{Name: "no certificate found in x5u chain"}
	}
	return chain, nil
}

// decodeSignature parses the base64url raw r||s signature for the curve.
func decodeSignature(signature string, curve elliptic.Curve) (r, s *big.Int, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		// Tolerate padded input.
		raw, err = base64.URLEncoding.DecodeString(signature)
		if err != nil {
			return nil, nil, &InvalidSignatureError{Name: fmt.Sprintf("signature is not valid base64url: %s", err), Cause: err}
		}
	}

	coordSize := (curve.Params().BitSize + 7) / 8
	if len(raw) != 2*coordSize {
		return nil, nil, &InvalidSignatureError{Name: fmt.Sprintf("signature has length %d, expected %d", len(raw), 2*coordSize)}
	}
	r = new(big.Int).SetBytes(raw[:coordSize])
	s = new(big.Int).SetBytes(raw[coordSize:])
	return r, s, nil
}

// serializeRecords builds the signed payload: canonical JSON of the records
// sorted by id together with the collection timestamp.
func serializeRecords(records []client.Record, timestamp uint64) ([]byte, error) {
	sorted := make([]interface{}, len(records))
	for i, record := range records {
		sorted[i] = map[string]interface{}(record)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, _ := sorted[i].(map[string]interface{})["id"].(string)
		b, _ := sorted[j].(map[string]interface{})["id"].(string)
		return a < b
	})

	return marshalCanonical(map[string]interface{}{
		"data":          sorted,
		"last_modified": strconv.FormatUint(timestamp, 10),
	})
}

var _ client.Verification = (*ContentSignatureVerifier)(nil)
