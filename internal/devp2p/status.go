package devp2p

import (
	"math/big"

	"evmwalletkit/internal/rlp"
	"evmwalletkit/internal/werr"
)

// Status is the LES Status message exchanged right after Hello, carrying
// chain identity and server capability flags (§4.8 StatusExchange).
type Status struct {
	ProtocolVersion uint64
	NetworkID       uint64
	HeadTd          *big.Int
	HeadHash        [32]byte
	HeadNum         uint64
	GenesisHash     [32]byte
	ServeHeaders    bool
	ServeChainSince uint64
	ServeStateSince uint64
	TxRelay         bool
	FlowControlBL   uint64 // buffer limit
	FlowControlMRC  uint64 // minimum recharge rate
	FlowControlMRR  uint64 // maximum recharge rate
}

func (s Status) encode() []byte {
	boolByte := func(b bool) []byte {
		if b {
			return rlp.EncodeUint64(1)
		}
		return rlp.EncodeUint64(0)
	}
	items := [][]byte{
		rlp.EncodeUint64(s.ProtocolVersion),
		rlp.EncodeUint64(s.NetworkID),
		rlp.EncodeBigInt(s.HeadTd),
		rlp.EncodeBytes(s.HeadHash[:]),
		rlp.EncodeUint64(s.HeadNum),
		rlp.EncodeBytes(s.GenesisHash[:]),
		boolByte(s.ServeHeaders),
		rlp.EncodeUint64(s.ServeChainSince),
		rlp.EncodeUint64(s.ServeStateSince),
		boolByte(s.TxRelay),
		rlp.EncodeUint64(s.FlowControlBL),
		rlp.EncodeUint64(s.FlowControlMRC),
		rlp.EncodeUint64(s.FlowControlMRR),
	}
	return rlp.EncodeList(items...)
}

func decodeStatus(payload []byte) (Status, error) {
	v, _, err := rlp.Decode(payload)
	if err != nil {
		return Status{}, werr.Wrap(werr.Protocol, "devp2p: decode status", err)
	}
	if !v.IsList || len(v.List) < 13 {
		return Status{}, werr.New(werr.Protocol, "devp2p: malformed status")
	}
	get := func(i int) *rlp.Value { return v.List[i] }
	u := func(i int) uint64 {
		n, _ := rlp.DecodeUint64(get(i))
		return n
	}
	headTd, err := rlp.DecodeBigInt(get(2))
	if err != nil {
		return Status{}, werr.Wrap(werr.Protocol, "devp2p: status headTd", err)
	}
	var headHash, genesisHash [32]byte
	copy(headHash[:], get(3).Str())
	copy(genesisHash[:], get(5).Str())

	return Status{
		ProtocolVersion: u(0),
		NetworkID:       u(1),
		HeadTd:          headTd,
		HeadHash:        headHash,
		HeadNum:         u(4),
		GenesisHash:     genesisHash,
		ServeHeaders:    u(6) != 0,
		ServeChainSince: u(7),
		ServeStateSince: u(8),
		TxRelay:         u(9) != 0,
		FlowControlBL:   u(10),
		FlowControlMRC:  u(11),
		FlowControlMRR:  u(12),
	}, nil
}
