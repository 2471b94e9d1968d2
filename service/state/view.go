package state

import (
	"sort"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// View is the JSON rendering of a ClientState served over HTTP. Sessions and
// raw account data are not included.
type View struct {
	Cluster       ClusterView       `json:"cluster"`
	Wallet        WalletView        `json:"wallet"`
	Accounts      []AccountView     `json:"accounts"`
	Subscriptions SubscriptionsView `json:"subscriptions"`
	Transactions  []TransactionView `json:"transactions"`
	LastUpdatedAt *time.Time        `json:"last_updated_at,omitempty"`
}

type ClusterView struct {
	Endpoint          string             `json:"endpoint"`
	WebsocketEndpoint string             `json:"websocket_endpoint,omitempty"`
	Commitment        rpc.CommitmentType `json:"commitment"`
	Status            string             `json:"status"`
	LatencyMs         *int64             `json:"latency_ms,omitempty"`
	Error             string             `json:"error,omitempty"`
}

type WalletView struct {
	Status      string `json:"status"`
	ConnectorID string `json:"connector_id,omitempty"`
	Address     string `json:"address,omitempty"`
	AutoConnect bool   `json:"auto_connect"`
	Error       string `json:"error,omitempty"`
}

type AccountView struct {
	Address       string     `json:"address"`
	Lamports      uint64     `json:"lamports"`
	Owner         string     `json:"owner,omitempty"`
	DataLen       int        `json:"data_len"`
	Executable    bool       `json:"executable"`
	Slot          uint64     `json:"slot"`
	Fetching      bool       `json:"fetching"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type SubscriptionsView struct {
	Accounts   map[string]string `json:"accounts"`
	Signatures map[string]string `json:"signatures"`
}

type TransactionView struct {
	ID            string            `json:"id"`
	Address       string            `json:"address,omitempty"`
	Status        TransactionStatus `json:"status"`
	Signature     string            `json:"signature,omitempty"`
	Error         string            `json:"error,omitempty"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// NewView renders s. Accounts and transactions are sorted for stable output.
func NewView(s ClientState) View {
	v := View{
		Cluster: ClusterView{
			Endpoint:          s.Cluster.Endpoint,
			WebsocketEndpoint: s.Cluster.WebsocketEndpoint,
			Commitment:        s.Cluster.Commitment,
			Status:            ClusterIdle{}.String(),
		},
		Wallet:        WalletView{Status: WalletDisconnected{}.String()},
		Accounts:      make([]AccountView, 0, len(s.Accounts)),
		Transactions:  make([]TransactionView, 0, len(s.Transactions)),
		LastUpdatedAt: timePtr(s.LastUpdatedAt),
		Subscriptions: SubscriptionsView{
			Accounts:   make(map[string]string, len(s.Subscriptions.Accounts)),
			Signatures: make(map[string]string, len(s.Subscriptions.Signatures)),
		},
	}

	switch st := s.Cluster.Status.(type) {
	case ClusterReady:
		latency := st.LatencyMs
		v.Cluster.LatencyMs = &latency
		v.Cluster.Status = st.String()
	case ClusterError:
		v.Cluster.Error = errString(st.Err)
		v.Cluster.Status = st.String()
	case ClusterConnecting, ClusterIdle:
		v.Cluster.Status = st.String()
	}

	switch w := s.Wallet.(type) {
	case WalletConnecting:
		v.Wallet = WalletView{Status: w.String(), ConnectorID: w.ConnectorID, AutoConnect: w.AutoConnect}
	case WalletConnected:
		v.Wallet = WalletView{Status: w.String(), ConnectorID: w.ConnectorID, AutoConnect: w.AutoConnect}
		if w.Session != nil {
			v.Wallet.Address = w.Session.Account.Address
		}
	case WalletError:
		v.Wallet = WalletView{Status: w.String(), ConnectorID: w.ConnectorID, AutoConnect: w.AutoConnect, Error: errString(w.Err)}
	}

	for _, e := range s.Accounts {
		v.Accounts = append(v.Accounts, NewAccountView(e))
	}
	sort.Slice(v.Accounts, func(i, j int) bool { return v.Accounts[i].Address < v.Accounts[j].Address })

	for id, rec := range s.Transactions {
		tv := TransactionView{
			ID:            id,
			Address:       rec.Address,
			Status:        rec.Status,
			Error:         errString(rec.Err),
			LastUpdatedAt: rec.LastUpdatedAt,
		}
		if rec.Signature != nil {
			tv.Signature = rec.Signature.String()
		}
		v.Transactions = append(v.Transactions, tv)
	}
	sort.Slice(v.Transactions, func(i, j int) bool {
		return v.Transactions[i].LastUpdatedAt.After(v.Transactions[j].LastUpdatedAt)
	})

	for k, st := range s.Subscriptions.Accounts {
		v.Subscriptions.Accounts[k] = st.String()
	}
	for k, st := range s.Subscriptions.Signatures {
		v.Subscriptions.Signatures[k] = st.String()
	}
	return v
}

// NewAccountView renders a single cache entry.
func NewAccountView(e AccountCacheEntry) AccountView {
	av := AccountView{
		Address:       e.Address,
		Lamports:      e.Lamports,
		DataLen:       len(e.Data),
		Executable:    e.Executable,
		Slot:          e.Slot,
		Fetching:      e.Fetching,
		LastFetchedAt: timePtr(e.LastFetchedAt),
		Error:         errString(e.Err),
	}
	if e.Owner != nil {
		av.Owner = e.Owner.String()
	}
	return av
}
