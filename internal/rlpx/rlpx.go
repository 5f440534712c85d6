// Package rlpx implements the RLPx transport (C7): the ECIES-based
// auth/ack handshake and the 16-byte framed, rolling-Keccak-MAC wire
// format every devp2p/LES message travels over. The net.Conn-wrapping
// shape is grounded on the p2p-rlpx_transport reference implementation in
// the example pack; the MAC/frame discipline itself follows §4.7 exactly,
// which that reference simplifies (plain HMAC, random IV) in a way that
// cannot satisfy invariant I5 — so the rolling-MAC math here is original
// to this package, built from cryptoprim's Keccak/AES-ECB primitives.
package rlpx

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"evmwalletkit/internal/cryptoprim"
	"evmwalletkit/internal/rlp"
	"evmwalletkit/internal/werr"
)

const (
	macLen    = 16
	headerLen = 16
)

// Secrets is the RLPx session key material derived once at handshake
// completion and mutated by every frame thereafter (I5).
type Secrets struct {
	AESKey     [32]byte
	MACKey     [32]byte
	Token      [32]byte
	EgressMAC  cryptoprim.KeccakState
	IngressMAC cryptoprim.KeccakState
}

// handshakeAuth is the plaintext auth/ack body, EIP-8 RLP-wrapped before
// ECIES encryption: pub(ephemeral) || keccak(pub(ephemeral)) || pub(static)
// || nonce || version byte.
type handshakeAuth struct {
	EphemeralPub []byte
	StaticPub    []byte
	Nonce        [32]byte
}

func encodeAuth(a handshakeAuth) []byte {
	items := [][]byte{
		rlp.EncodeBytes(a.EphemeralPub),
		rlp.EncodeBytes(crypto.Keccak256(a.EphemeralPub)),
		rlp.EncodeBytes(a.StaticPub),
		rlp.EncodeBytes(a.Nonce[:]),
		rlp.EncodeBytes([]byte{0x00}),
	}
	return rlp.EncodeList(items...)
}

func decodeAuth(body []byte) (handshakeAuth, error) {
	v, _, err := rlp.Decode(body)
	if err != nil {
		return handshakeAuth{}, werr.Wrap(werr.Protocol, "rlpx: decode auth body", err)
	}
	if !v.IsList || len(v.List) < 4 {
		return handshakeAuth{}, werr.New(werr.Protocol, "rlpx: malformed auth body")
	}
	var out handshakeAuth
	out.EphemeralPub = v.List[0].Str()
	out.StaticPub = v.List[2].Str()
	copy(out.Nonce[:], v.List[3].Str())
	return out, nil
}

// DialHandshake performs the initiator side of the handshake described in
// §4.7: generate an ephemeral key and nonce, send the auth message,
// receive and parse the ack, and derive session Secrets.
func DialHandshake(conn net.Conn, localStatic *ecdsa.PrivateKey, remoteStaticPub *ecdsa.PublicKey) (Secrets, error) {
	ephemeral, err := cryptoprim.GeneratePrivateKey()
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: generate ephemeral key", err)
	}
	var nonceInit [32]byte
	if _, err := rand.Read(nonceInit[:]); err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: generate nonce", err)
	}

	auth := handshakeAuth{
		EphemeralPub: crypto.FromECDSAPub(&ephemeral.PublicKey),
		StaticPub:    crypto.FromECDSAPub(&localStatic.PublicKey),
		Nonce:        nonceInit,
	}
	authPlain := encodeAuth(auth)
	authEnc, err := cryptoprim.EciesEncrypt(remoteStaticPub, authPlain, nil, nil)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: encrypt auth", err)
	}
	if err := writeEciesMessage(conn, authEnc); err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: send auth", err)
	}

	ackEnc, err := readEciesMessage(conn)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: recv ack", err)
	}
	ackPlain, err := cryptoprim.EciesDecrypt(localStatic, ackEnc, nil, nil)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Protocol, "rlpx: decrypt ack", err)
	}
	ack, err := decodeAuth(ackPlain)
	if err != nil {
		return Secrets{}, err
	}

	remoteEphPub, err := crypto.UnmarshalPubkey(ack.EphemeralPub)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Protocol, "rlpx: parse remote ephemeral key", err)
	}

	return deriveSecrets(ephemeral, remoteEphPub, ack.Nonce, nonceInit, authEnc, ackEnc, true)
}

// AcceptHandshake performs the receiver side: read and decrypt the auth
// message, generate our own ephemeral key/nonce, send the ack, and derive
// the same Secrets the initiator derived (mirrored roles).
func AcceptHandshake(conn net.Conn, localStatic *ecdsa.PrivateKey) (Secrets, error) {
	authEnc, err := readEciesMessage(conn)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: recv auth", err)
	}
	authPlain, err := cryptoprim.EciesDecrypt(localStatic, authEnc, nil, nil)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Protocol, "rlpx: decrypt auth", err)
	}
	auth, err := decodeAuth(authPlain)
	if err != nil {
		return Secrets{}, err
	}
	remoteEphPub, err := crypto.UnmarshalPubkey(auth.EphemeralPub)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Protocol, "rlpx: parse remote ephemeral key", err)
	}
	remoteStaticPub, err := crypto.UnmarshalPubkey(auth.StaticPub)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Protocol, "rlpx: parse remote static key", err)
	}

	ephemeral, err := cryptoprim.GeneratePrivateKey()
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: generate ephemeral key", err)
	}
	var nonceResp [32]byte
	if _, err := rand.Read(nonceResp[:]); err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: generate nonce", err)
	}

	ack := handshakeAuth{
		EphemeralPub: crypto.FromECDSAPub(&ephemeral.PublicKey),
		StaticPub:    crypto.FromECDSAPub(&localStatic.PublicKey),
		Nonce:        nonceResp,
	}
	ackPlain := encodeAuth(ack)
	ackEnc, err := cryptoprim.EciesEncrypt(remoteStaticPub, ackPlain, nil, nil)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: encrypt ack", err)
	}
	if err := writeEciesMessage(conn, ackEnc); err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: send ack", err)
	}

	return deriveSecrets(ephemeral, remoteEphPub, nonceResp, auth.Nonce, authEnc, ackEnc, false)
}

// readEciesMessage reads exactly one ECIES-encrypted message off conn.
// RLPx messages are not length-prefixed on the wire at this layer in our
// simplified transport — callers supply a fixed-size buffer sized to the
// known plaintext length plus ECIES overhead via io.ReadFull upstream; here
// we read until EOF-on-idle is impractical, so the real transport instead
// reads a length-prefixed record. We keep that simpler, explicit framing.
func readEciesMessage(conn net.Conn) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeEciesMessage is readEciesMessage's counterpart: a 4-byte big-endian
// length prefix followed by the message.
func writeEciesMessage(conn net.Conn, msg []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(msg)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(msg)
	return err
}

// deriveSecrets implements §4.7 step 5-6: S = ecdh(E, E_r); aesSecret =
// keccak(S || keccak(N_r || N_i)); macSecret = keccak(S || aesSecret);
// token = keccak(S); egressMac/ingressMac seeded from macSecret XOR the
// peer's nonce plus the handshake message each side sent/received.
func deriveSecrets(local *ecdsa.PrivateKey, remoteEphPub *ecdsa.PublicKey, remoteNonce, localNonce [32]byte, authSent, ackReceived []byte, initiator bool) (Secrets, error) {
	s, err := cryptoprim.ECDH(local, remoteEphPub)
	if err != nil {
		return Secrets{}, werr.Wrap(werr.Transport, "rlpx: ecdh", err)
	}

	nonceHash := cryptoprim.Keccak256(remoteNonce[:], localNonce[:])
	aesSecret := cryptoprim.Keccak256(s[:], nonceHash[:])
	macSecret := cryptoprim.Keccak256(s[:], aesSecret[:])
	token := cryptoprim.Keccak256(s[:])

	xorNR := xor32(macSecret, remoteNonce)
	xorNI := xor32(macSecret, localNonce)

	var egress, ingress cryptoprim.KeccakState
	if initiator {
		egress = seedMac(xorNR, authSent)
		ingress = seedMac(xorNI, ackReceived)
	} else {
		egress = seedMac(xorNI, ackReceived)
		ingress = seedMac(xorNR, authSent)
	}

	return Secrets{
		AESKey:     aesSecret,
		MACKey:     macSecret,
		Token:      token,
		EgressMAC:  egress,
		IngressMAC: ingress,
	}, nil
}

func xor32(a, b [32]byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func seedMac(seed [32]byte, msg []byte) cryptoprim.KeccakState {
	st := cryptoprim.NewKeccakState()
	st.Write(seed[:])
	st.Write(msg)
	return st
}

// Conn wraps a net.Conn with RLPx frame encryption/decryption and the
// rolling MAC state from Secrets. One Conn is exactly one devp2p session;
// its MAC state is never reset (I5).
type Conn struct {
	nc      net.Conn
	secrets Secrets

	wmu sync.Mutex
	rmu sync.Mutex
}

// NewConn wraps nc with the given session Secrets.
func NewConn(nc net.Conn, secrets Secrets) *Conn {
	return &Conn{nc: nc, secrets: secrets}
}

// updateMac implements §4.7's updateMac(mac, key, seed) = truncate(
// keccak(mac || (aesEcb(key, keccak(mac)[0..16]) XOR seed)), 16), mutating
// mac's running Keccak state in place and returning the new 16-byte MAC
// value.
func updateMac(mac cryptoprim.KeccakState, key [32]byte, seed []byte) ([]byte, error) {
	digest := mac.Sum(nil)
	var block [16]byte
	copy(block[:], digest[:16])
	encrypted, err := cryptoprim.AESECBEncryptBlock(key[:16], block[:])
	if err != nil {
		return nil, err
	}
	xored := make([]byte, 16)
	for i := 0; i < 16; i++ {
		xored[i] = encrypted[i] ^ seed[i]
	}
	mac.Write(xored)
	out := mac.Sum(nil)
	return out[:16], nil
}

// WriteFrame encodes, encrypts, and sends one RLPx frame carrying payload.
func (c *Conn) WriteFrame(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	header := make([]byte, headerLen)
	header[0] = byte(len(payload) >> 16)
	header[1] = byte(len(payload) >> 8)
	header[2] = byte(len(payload))
	zeroList := rlp.EncodeList(rlp.EncodeUint64(0), rlp.EncodeUint64(0))
	copy(header[3:], zeroList)

	headerEnc, err := cryptoprim.AESCTRXOR(c.secrets.AESKey[:16], zeroIV(), header)
	if err != nil {
		return werr.Wrap(werr.Transport, "rlpx: encrypt header", err)
	}
	headerMAC, err := updateMac(c.secrets.EgressMAC, c.secrets.MACKey, headerEnc)
	if err != nil {
		return werr.Wrap(werr.Transport, "rlpx: header mac", err)
	}

	padded := padTo16(payload)
	bodyEnc, err := cryptoprim.AESCTRXOR(c.secrets.AESKey[:16], zeroIV(), padded)
	if err != nil {
		return werr.Wrap(werr.Transport, "rlpx: encrypt body", err)
	}
	bodyDigest := c.secrets.EgressMAC.Sum(nil)
	var seedBlock [16]byte
	copy(seedBlock[:], bodyDigest[:16])
	encryptedSeed, err := cryptoprim.AESECBEncryptBlock(c.secrets.MACKey[:16], seedBlock[:])
	if err != nil {
		return werr.Wrap(werr.Transport, "rlpx: mac seed", err)
	}
	frameSeed := make([]byte, 16)
	for i := range frameSeed {
		frameSeed[i] = encryptedSeed[i] ^ bodyEnc[len(bodyEnc)-16+i]
	}
	frameMAC, err := updateMac(c.secrets.EgressMAC, c.secrets.MACKey, frameSeed)
	if err != nil {
		return werr.Wrap(werr.Transport, "rlpx: frame mac", err)
	}

	out := make([]byte, 0, len(headerEnc)+len(headerMAC)+len(bodyEnc)+len(frameMAC))
	out = append(out, headerEnc...)
	out = append(out, headerMAC...)
	out = append(out, bodyEnc...)
	out = append(out, frameMAC...)
	if _, err := c.nc.Write(out); err != nil {
		return werr.Wrap(werr.Transport, "rlpx: write frame", err)
	}
	return nil
}

// ReadFrame receives, verifies, and decrypts one RLPx frame, returning its
// payload (with frame padding stripped).
func (c *Conn) ReadFrame() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	headerEnc := make([]byte, headerLen)
	if _, err := io.ReadFull(c.nc, headerEnc); err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: read header", err)
	}
	wantHeaderMAC, err := updateMac(c.secrets.IngressMAC, c.secrets.MACKey, headerEnc)
	if err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: header mac", err)
	}
	gotHeaderMAC := make([]byte, macLen)
	if _, err := io.ReadFull(c.nc, gotHeaderMAC); err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: read header mac", err)
	}
	if !macEqual(wantHeaderMAC, gotHeaderMAC) {
		return nil, werr.New(werr.Protocol, "rlpx: header mac mismatch")
	}

	header, err := cryptoprim.AESCTRXOR(c.secrets.AESKey[:16], zeroIV(), headerEnc)
	if err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: decrypt header", err)
	}
	payloadLen := int(header[0])<<16 | int(header[1])<<8 | int(header[2])
	paddedLen := ((payloadLen + 15) / 16) * 16
	if paddedLen == 0 {
		paddedLen = 16
	}

	bodyEnc := make([]byte, paddedLen)
	if _, err := io.ReadFull(c.nc, bodyEnc); err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: read body", err)
	}

	bodyDigest := c.secrets.IngressMAC.Sum(nil)
	var seedBlock [16]byte
	copy(seedBlock[:], bodyDigest[:16])
	encryptedSeed, err := cryptoprim.AESECBEncryptBlock(c.secrets.MACKey[:16], seedBlock[:])
	if err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: mac seed", err)
	}
	frameSeed := make([]byte, 16)
	if paddedLen >= 16 {
		for i := range frameSeed {
			frameSeed[i] = encryptedSeed[i] ^ bodyEnc[paddedLen-16+i]
		}
	} else {
		copy(frameSeed, encryptedSeed)
	}
	wantFrameMAC, err := updateMac(c.secrets.IngressMAC, c.secrets.MACKey, frameSeed)
	if err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: frame mac", err)
	}
	gotFrameMAC := make([]byte, macLen)
	if _, err := io.ReadFull(c.nc, gotFrameMAC); err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: read frame mac", err)
	}
	if !macEqual(wantFrameMAC, gotFrameMAC) {
		return nil, werr.New(werr.Protocol, "rlpx: frame mac mismatch")
	}

	body, err := cryptoprim.AESCTRXOR(c.secrets.AESKey[:16], zeroIV(), bodyEnc)
	if err != nil {
		return nil, werr.Wrap(werr.Transport, "rlpx: decrypt body", err)
	}
	if payloadLen > len(body) {
		return nil, werr.New(werr.Protocol, "rlpx: payload length exceeds frame")
	}
	return body[:payloadLen], nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

func zeroIV() []byte {
	return make([]byte, 16)
}

// padTo16 pads b up to the next 16-byte boundary, always at least one
// block — devp2p payloads always carry a message-code prefix and so are
// never actually empty, but the padding discipline must hold regardless.
func padTo16(b []byte) []byte {
	size := ((len(b) + 15) / 16) * 16
	if size == 0 {
		size = 16
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

func macEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
