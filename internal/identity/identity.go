package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/msp"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/logger"
	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// attributeOID is the certificate extension under which Fabric CA stores
// enrollment attributes
var attributeOID = asn1.ObjectIdentifier{1, 2, 3, 4, 5, 6, 7, 8, 1}

type certAttributes struct {
	Attrs map[string]string `json:"attrs"`
}

// SigningIdentity is an enrolled participant: an ECDSA key pair, an X.509
// certificate carrying the participant's role attribute, and the serialized
// creator bytes chaincode sees via GetCreator.
type SigningIdentity struct {
	EnrollmentID string
	Role         types.Role
	MSPID        string
	CertPEM      []byte

	key     *ecdsa.PrivateKey
	creator []byte
}

// Creator returns the proto-serialized MSP identity for transaction proposals
func (si *SigningIdentity) Creator() []byte { return si.creator }

// Registry enrolls identities and caches them for proposal signing. Resolve
// misses surface as identity errors so a gateway caller is never silently
// mapped to someone else's certificate.
type Registry struct {
	mspID string
	log   *logger.Logger

	mu    sync.RWMutex
	cache map[string]*SigningIdentity
}

// NewRegistry returns an empty identity registry for the given MSP
func NewRegistry(mspID string, log *logger.Logger) *Registry {
	return &Registry{
		mspID: mspID,
		log:   log,
		cache: make(map[string]*SigningIdentity),
	}
}

// Enroll mints a certificate for enrollmentID with the given role and caches
// the resulting signing identity. Enrolling an already-enrolled id replaces
// its certificate.
func (r *Registry) Enroll(enrollmentID string, role types.Role) (*SigningIdentity, error) {
	if enrollmentID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "enrollment id is required")
	}
	if !types.IsValidRole(role) {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown role %q", role))
	}

	si, err := mint(enrollmentID, role, r.mspID)
	if err != nil {
		return nil, types.NewInternalError("failed to enroll identity", err)
	}

	r.mu.Lock()
	r.cache[enrollmentID] = si
	r.mu.Unlock()

	r.log.WithFields(map[string]interface{}{
		"enrollment_id": enrollmentID,
		"role":          role,
	}).Info("Identity enrolled")
	return si, nil
}

// Resolve returns the cached signing identity for callerID
func (r *Registry) Resolve(callerID string) (*SigningIdentity, error) {
	r.mu.RLock()
	si, ok := r.cache[callerID]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewIdentityNotFoundError(callerID)
	}
	return si, nil
}

// Invalidate evicts a cached identity. Subsequent submissions for the caller
// fail until re-enrollment.
func (r *Registry) Invalidate(callerID string) {
	r.mu.Lock()
	delete(r.cache, callerID)
	r.mu.Unlock()
}

func mint(enrollmentID string, role types.Role, mspID string) (*SigningIdentity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	attrJSON, err := json.Marshal(certAttributes{Attrs: map[string]string{"role": string(role)}})
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: enrollmentID, Organization: []string{mspID}},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.AddDate(10, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtraExtensions: []pkix.Extension{
			{Id: attributeOID, Value: attrJSON},
		},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	creator, err := proto.Marshal(&msp.SerializedIdentity{Mspid: mspID, IdBytes: certPEM})
	if err != nil {
		return nil, fmt.Errorf("serialize identity: %w", err)
	}

	return &SigningIdentity{
		EnrollmentID: enrollmentID,
		Role:         role,
		MSPID:        mspID,
		CertPEM:      certPEM,
		key:          key,
		creator:      creator,
	}, nil
}
