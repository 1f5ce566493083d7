package ctap2

// PublicKeyCredentialRpEntity identifies a relying party.
type PublicKeyCredentialRpEntity struct {
	ID   string `cbor:"id"`
	Name string `cbor:"name,omitempty"`
}

// NewRpEntity builds a relying-party entity.
func NewRpEntity(id, name string) PublicKeyCredentialRpEntity {
	return PublicKeyCredentialRpEntity{ID: id, Name: name}
}

// DummyRpEntity returns the fixed placeholder relying party used by
// token-acquisition flows that need well-formed but discardable inputs.
func DummyRpEntity() PublicKeyCredentialRpEntity {
	return PublicKeyCredentialRpEntity{ID: ".dummy", Name: ".dummy"}
}

// PublicKeyCredentialUserEntity identifies a user account at a relying party.
type PublicKeyCredentialUserEntity struct {
	ID          []byte `cbor:"id"`
	Name        string `cbor:"name,omitempty"`
	DisplayName string `cbor:"displayName,omitempty"`
}

// NewUserEntity builds a user entity.
func NewUserEntity(id []byte, name, displayName string) PublicKeyCredentialUserEntity {
	return PublicKeyCredentialUserEntity{ID: id, Name: name, DisplayName: displayName}
}

// DummyUserEntity returns the fixed placeholder user used by
// token-acquisition flows that need well-formed but discardable inputs.
func DummyUserEntity() PublicKeyCredentialUserEntity {
	return PublicKeyCredentialUserEntity{ID: []byte{0x01}, Name: "dummy"}
}

// PublicKeyCredentialType is the credential type string. Values other than
// "public-key" decode to CredentialTypeUnknown rather than failing, so that
// newer authenticators remain usable.
type PublicKeyCredentialType string

const (
	CredentialTypePublicKey PublicKeyCredentialType = "public-key"
	CredentialTypeUnknown   PublicKeyCredentialType = "unknown"
)

// UnmarshalCBOR decodes any unrecognized type string to CredentialTypeUnknown.
func (t *PublicKeyCredentialType) UnmarshalCBOR(data []byte) error {
	var s string
	if err := decMode.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == string(CredentialTypePublicKey) {
		*t = CredentialTypePublicKey
	} else {
		*t = CredentialTypeUnknown
	}
	return nil
}

// COSEAlgorithmIdentifier is a COSE algorithm identifier. Identifiers not
// known to this library decode to AlgUnknown (sentinel -999).
type COSEAlgorithmIdentifier int32

const (
	AlgES256   COSEAlgorithmIdentifier = -7
	AlgEdDSA   COSEAlgorithmIdentifier = -8
	AlgTOTP    COSEAlgorithmIdentifier = -9
	AlgUnknown COSEAlgorithmIdentifier = -999
)

// MarshalCBOR encodes the identifier as a plain integer.
func (a COSEAlgorithmIdentifier) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(int64(a))
}

// UnmarshalCBOR decodes any unrecognized identifier to AlgUnknown.
func (a *COSEAlgorithmIdentifier) UnmarshalCBOR(data []byte) error {
	var v int64
	if err := decMode.Unmarshal(data, &v); err != nil {
		return err
	}
	switch COSEAlgorithmIdentifier(v) {
	case AlgES256, AlgEdDSA, AlgTOTP:
		*a = COSEAlgorithmIdentifier(v)
	default:
		*a = AlgUnknown
	}
	return nil
}

// CredentialType pairs a credential type with a COSE algorithm.
type CredentialType struct {
	Algorithm COSEAlgorithmIdentifier `cbor:"alg"`
	Type      PublicKeyCredentialType `cbor:"type"`
}

// DefaultCredentialType returns ES256 over "public-key", the baseline every
// FIDO2 authenticator supports.
func DefaultCredentialType() CredentialType {
	return CredentialType{Algorithm: AlgES256, Type: CredentialTypePublicKey}
}

// IsKnown reports whether both the algorithm and the type decoded to values
// this library understands.
func (c CredentialType) IsKnown() bool {
	return c.Algorithm != AlgUnknown && c.Type != CredentialTypeUnknown
}

// Transport is a CTAP2 transport hint attached to a credential descriptor.
type Transport string

const (
	TransportBle      Transport = "ble"
	TransportNfc      Transport = "nfc"
	TransportUsb      Transport = "usb"
	TransportInternal Transport = "internal"
	TransportHybrid   Transport = "hybrid"
	TransportUnknown  Transport = "unknown"
)

// UnmarshalCBOR decodes any unrecognized transport string to TransportUnknown.
func (t *Transport) UnmarshalCBOR(data []byte) error {
	var s string
	if err := decMode.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Transport(s) {
	case TransportBle, TransportNfc, TransportUsb, TransportInternal, TransportHybrid:
		*t = Transport(s)
	default:
		*t = TransportUnknown
	}
	return nil
}

// Ctap1Transport is a CTAP1/U2F transport hint.
type Ctap1Transport string

const (
	Ctap1TransportBt  Ctap1Transport = "bt"
	Ctap1TransportBle Ctap1Transport = "ble"
	Ctap1TransportUsb Ctap1Transport = "usb"
	Ctap1TransportNfc Ctap1Transport = "nfc"
)

// Ctap2 maps a CTAP1 transport onto its CTAP2 equivalent. Bt and Ble both
// map to "ble"; CTAP2 does not distinguish them.
func (t Ctap1Transport) Ctap2() Transport {
	switch t {
	case Ctap1TransportBt, Ctap1TransportBle:
		return TransportBle
	case Ctap1TransportNfc:
		return TransportNfc
	default:
		return TransportUsb
	}
}

// PublicKeyCredentialDescriptor identifies one credential.
type PublicKeyCredentialDescriptor struct {
	ID         []byte                  `cbor:"id"`
	Type       PublicKeyCredentialType `cbor:"type"`
	Transports []Transport             `cbor:"transports,omitempty"`
}

// COSEKey is a COSE_Key structure restricted to the EC2 form used by CTAP2
// key agreement (kty 2, P-256).
type COSEKey struct {
	KeyType   int64  `cbor:"1,keyasint"`
	Algorithm int64  `cbor:"3,keyasint"`
	Curve     int64  `cbor:"-1,keyasint"`
	X         []byte `cbor:"-2,keyasint"`
	Y         []byte `cbor:"-3,keyasint"`
}

// COSE key constants for the key-agreement key.
const (
	CoseKeyTypeEC2 = 2
	CoseAlgEcdhEsHkdf256 = -25
	CoseCurveP256  = 1
)

// NewCOSEKeyP256 builds the platform key-agreement key from raw P-256
// affine coordinates.
func NewCOSEKeyP256(x, y []byte) *COSEKey {
	return &COSEKey{
		KeyType:   CoseKeyTypeEC2,
		Algorithm: CoseAlgEcdhEsHkdf256,
		Curve:     CoseCurveP256,
		X:         x,
		Y:         y,
	}
}
