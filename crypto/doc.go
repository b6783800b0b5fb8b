// Package crypto implements the wire-level cryptographic primitives for
// the transport core (component B): AES-256-IGE, AES-CTR, SHA-1,
// SHA-256, and a CSPRNG, plus the MTProto1/MTProto2 envelope encryption
// and key-derivation schemes that the packet framer (component F) uses
// to turn a pre-shared 256-byte symmetric key into per-direction AES
// keys.
//
// There is no asymmetric key agreement here: the shared key arrives
// ready-made (spec §1), so this package has no keypair or Diffie-Hellman
// surface. What it does provide is a faithful, from-scratch
// implementation of the IGE block cipher mode, because neither the
// standard library nor any package in the reference corpus implements
// it — see DESIGN.md for the full justification.
package crypto
