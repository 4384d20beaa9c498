package quest

// Authorizer proves that the current operation was signed by an address.
// Every mutating engine call receives one and checks it against the expected
// principal before touching state.
type Authorizer interface {
	RequireSigned(addr [20]byte) error
}

// Caller is an Authorizer for a single, already verified signer.
type Caller [20]byte

// RequireSigned implements Authorizer.
func (c Caller) RequireSigned(addr [20]byte) error {
	if c == (Caller{}) || [20]byte(c) != addr {
		return ErrUnauthorized
	}
	return nil
}

func requireSigned(auth Authorizer, addr [20]byte) error {
	if auth == nil {
		return ErrUnauthorized
	}
	return auth.RequireSigned(addr)
}
