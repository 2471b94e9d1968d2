package state

import (
	"maps"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ClusterState describes the cluster the client talks to.
// Endpoint and Commitment are always set once Status has left ClusterIdle.
type ClusterState struct {
	Endpoint          string
	WebsocketEndpoint string
	Commitment        rpc.CommitmentType
	Status            ClusterStatus
}

// AccountCacheEntry is the cached view of one on-chain account.
// Slot orders entries: a response older than Slot never replaces the entry.
type AccountCacheEntry struct {
	Address       string
	Lamports      uint64
	Data          []byte
	Owner         *solana.PublicKey
	Executable    bool
	Slot          uint64
	Fetching      bool
	LastFetchedAt time.Time
	Err           error
}

// AccountCache is keyed by base58 address.
type AccountCache map[string]AccountCacheEntry

// SubscriptionState holds per-address and per-signature subscription status.
type SubscriptionState struct {
	Accounts   map[string]SubscriptionStatus
	Signatures map[string]SubscriptionStatus
}

// TransactionRecord tracks a transaction submitted through the client.
type TransactionRecord struct {
	// Address is the fee payer, or the recipient for an airdrop.
	Address       string
	Status        TransactionStatus
	Signature     *solana.Signature
	Err           error
	LastUpdatedAt time.Time
}

// ClientState is one immutable snapshot of the runtime.
// Values are replaced wholesale; the With* methods return modified copies and
// never write to maps shared with the receiver.
type ClientState struct {
	Cluster       ClusterState
	Wallet        WalletStatus
	Accounts      AccountCache
	Subscriptions SubscriptionState
	Transactions  map[string]TransactionRecord
	LastUpdatedAt time.Time
}

// Initial returns the snapshot a fresh client starts from.
func Initial(cluster ClusterState) ClientState {
	if cluster.Status == nil {
		cluster.Status = ClusterIdle{}
	}
	return ClientState{
		Cluster:  cluster,
		Wallet:   WalletDisconnected{},
		Accounts: AccountCache{},
		Subscriptions: SubscriptionState{
			Accounts:   map[string]SubscriptionStatus{},
			Signatures: map[string]SubscriptionStatus{},
		},
		Transactions: map[string]TransactionRecord{},
	}
}

// WithCluster replaces the cluster state.
func (s ClientState) WithCluster(c ClusterState) ClientState {
	s.Cluster = c
	return s
}

// WithClusterStatus replaces only the cluster status.
func (s ClientState) WithClusterStatus(status ClusterStatus) ClientState {
	s.Cluster.Status = status
	return s
}

// WithWallet replaces the wallet status.
func (s ClientState) WithWallet(w WalletStatus) ClientState {
	s.Wallet = w
	return s
}

// WithAccount stores entry under its address.
func (s ClientState) WithAccount(entry AccountCacheEntry) ClientState {
	accounts := cloneOrNew(s.Accounts)
	accounts[entry.Address] = entry
	s.Accounts = accounts
	return s
}

// Account returns the cached entry for address.
func (s ClientState) Account(address string) (AccountCacheEntry, bool) {
	e, ok := s.Accounts[address]
	return e, ok
}

// WithAccountSubscription sets the subscription status for an address.
func (s ClientState) WithAccountSubscription(address string, status SubscriptionStatus) ClientState {
	subs := cloneOrNew(s.Subscriptions.Accounts)
	subs[address] = status
	s.Subscriptions.Accounts = subs
	return s
}

// WithSignatureSubscription sets the subscription status for a signature.
func (s ClientState) WithSignatureSubscription(signature string, status SubscriptionStatus) ClientState {
	subs := cloneOrNew(s.Subscriptions.Signatures)
	subs[signature] = status
	s.Subscriptions.Signatures = subs
	return s
}

// WithTransaction stores the record under id.
func (s ClientState) WithTransaction(id string, rec TransactionRecord) ClientState {
	txns := cloneOrNew(s.Transactions)
	txns[id] = rec
	s.Transactions = txns
	return s
}

// TransactionBySignature finds the tracked record carrying sig.
func (s ClientState) TransactionBySignature(sig solana.Signature) (string, TransactionRecord, bool) {
	for id, rec := range s.Transactions {
		if rec.Signature != nil && rec.Signature.Equals(sig) {
			return id, rec, true
		}
	}
	return "", TransactionRecord{}, false
}

// AccountSubscription returns the status for address, defaulting to inactive.
func (s ClientState) AccountSubscription(address string) SubscriptionStatus {
	if st, ok := s.Subscriptions.Accounts[address]; ok {
		return st
	}
	return SubscriptionInactive{}
}

// SignatureSubscription returns the status for signature, defaulting to inactive.
func (s ClientState) SignatureSubscription(signature string) SubscriptionStatus {
	if st, ok := s.Subscriptions.Signatures[signature]; ok {
		return st
	}
	return SubscriptionInactive{}
}

func cloneOrNew[M ~map[K]V, K comparable, V any](m M) M {
	if m == nil {
		return make(M)
	}
	return maps.Clone(m)
}
