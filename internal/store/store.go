// Package store defines the wallet's local persistence contract (C5) and a
// concurrency-safe in-memory implementation. The shape — an RWMutex-guarded
// struct with small, single-purpose accessor methods — mirrors the
// teacher's Ledger/SyncManager pairing (core/blockchain_synchronization.go,
// core/wallet.go).
package store

import (
	"sort"
	"sync"

	"evmwalletkit/internal/addr"
)

// Contract identifies what a balance or transaction entry is denominated
// in: the chain's native asset, or a specific ERC-20 token.
type Contract struct {
	Native bool
	Token  addr.Address
}

// NativeContract is the sentinel for "the chain's native asset".
var NativeContract = Contract{Native: true}

// ERC20Contract builds a Contract for a token at a.
func ERC20Contract(a addr.Address) Contract {
	return Contract{Token: a}
}

// TxRecord is one entry in the append-only transaction log.
type TxRecord struct {
	Hash        [32]byte
	BlockHeight uint64
	Nonce       uint64
	From        addr.Address
	To          addr.Address
	Value       string // decimal string; arbitrary precision, see internal/txsign
	Contract    Contract
}

// AccountState is the SPV back-end's verified view of an account, as
// reached via a Merkle-Patricia account proof (§4.8).
type AccountState struct {
	Balance string
	Nonce   uint64
	Root    [32]byte
}

// Header is re-exported locally to avoid store depending on chainparams;
// the SPV back-end constructs these from devp2p headers.
type Header struct {
	Number          uint64
	Hash            [32]byte
	ParentHash      [32]byte
	StateRoot       [32]byte
	TotalDifficulty string
}

// TxQuery filters the transaction log.
type TxQuery struct {
	FromHash *[32]byte
	Limit    int
	Contract *Contract
}

// Store is the persistence contract every back-end writes through and the
// Sync Controller reads through. Implementations must make reads
// consistent with writes that preceded them on the same goroutine — the
// in-memory MemStore achieves this trivially via its single mutex.
type Store interface {
	LastBlockHeight() (uint64, error)
	SetLastBlockHeight(h uint64) error

	Balance(c Contract) (string, error)
	SetBalance(c Contract, amount string) error

	AppendTransactions(txs []TxRecord) error
	Transactions(q TxQuery) ([]TxRecord, error)

	PutHeader(h Header) error
	// PutHeaders persists an entire verified header batch under one lock
	// acquisition, so a reader never observes the batch half-written (§4.8
	// "persist in a single atomic write per batch").
	PutHeaders(hs []Header) error
	HeaderByHash(hash [32]byte) (Header, bool, error)
	HeaderByNumber(number uint64) (Header, bool, error)

	AccountState() (AccountState, error)
	SetAccountState(s AccountState) error

	Clear() error
}

// MemStore is the in-memory Store used by demos and tests; it is also the
// reference behaviour other implementations (e.g. a bbolt-backed store)
// must match.
type MemStore struct {
	mu sync.RWMutex

	lastBlockHeight uint64
	balances        map[Contract]string
	txs             []TxRecord

	headersByHash   map[[32]byte]Header
	headersByNumber map[uint64][32]byte

	account AccountState
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		balances:        make(map[Contract]string),
		headersByHash:   make(map[[32]byte]Header),
		headersByNumber: make(map[uint64][32]byte),
	}
}

func (s *MemStore) LastBlockHeight() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBlockHeight, nil
}

func (s *MemStore) SetLastBlockHeight(h uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBlockHeight = h
	return nil
}

func (s *MemStore) Balance(c Contract) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.balances[c]
	if !ok {
		return "0", nil
	}
	return v, nil
}

func (s *MemStore) SetBalance(c Contract, amount string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[c] = amount
	return nil
}

func (s *MemStore) AppendTransactions(txs []TxRecord) error {
	if len(txs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, txs...)
	return nil
}

// Transactions returns entries matching q, newest-first ordered by
// (blockHeight desc, nonce desc), per §4.5.
func (s *MemStore) Transactions(q TxQuery) ([]TxRecord, error) {
	s.mu.RLock()
	all := make([]TxRecord, len(s.txs))
	copy(all, s.txs)
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].BlockHeight != all[j].BlockHeight {
			return all[i].BlockHeight > all[j].BlockHeight
		}
		return all[i].Nonce > all[j].Nonce
	})

	if q.Contract != nil {
		filtered := all[:0:0]
		for _, tx := range all {
			if tx.Contract == *q.Contract {
				filtered = append(filtered, tx)
			}
		}
		all = filtered
	}

	if q.FromHash != nil {
		idx := -1
		for i, tx := range all {
			if tx.Hash == *q.FromHash {
				idx = i
				break
			}
		}
		if idx >= 0 {
			all = all[idx+1:]
		} else {
			all = nil
		}
	}

	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

func (s *MemStore) PutHeader(h Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headersByHash[h.Hash] = h
	s.headersByNumber[h.Number] = h.Hash
	return nil
}

// PutHeaders writes every header in hs under a single lock acquisition.
func (s *MemStore) PutHeaders(hs []Header) error {
	if len(hs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hs {
		s.headersByHash[h.Hash] = h
		s.headersByNumber[h.Number] = h.Hash
	}
	return nil
}

func (s *MemStore) HeaderByHash(hash [32]byte) (Header, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headersByHash[hash]
	return h, ok, nil
}

func (s *MemStore) HeaderByNumber(number uint64) (Header, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.headersByNumber[number]
	if !ok {
		return Header{}, false, nil
	}
	h, ok := s.headersByHash[hash]
	return h, ok, nil
}

func (s *MemStore) AccountState() (AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, nil
}

func (s *MemStore) SetAccountState(a AccountState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = a
	return nil
}

// Clear resets the store to its zero state in one atomic step — used by
// walletsync.Controller.Clear after it has stopped the live back-end.
func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBlockHeight = 0
	s.balances = make(map[Contract]string)
	s.txs = nil
	s.headersByHash = make(map[[32]byte]Header)
	s.headersByNumber = make(map[uint64][32]byte)
	s.account = AccountState{}
	return nil
}

var _ Store = (*MemStore)(nil)
