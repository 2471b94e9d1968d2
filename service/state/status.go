package state

// ClusterStatus is the warmup status of the configured cluster endpoint.
// It is exactly one of ClusterIdle, ClusterConnecting, ClusterReady or ClusterError.
type ClusterStatus interface {
	clusterStatus()
	String() string
}

// ClusterIdle means no cluster has been configured yet.
type ClusterIdle struct{}

// ClusterConnecting means a health probe is in flight.
type ClusterConnecting struct{}

// ClusterReady means the last health probe succeeded.
type ClusterReady struct {
	LatencyMs int64
}

// ClusterError means the last health probe failed or timed out.
type ClusterError struct {
	Err error
}

func (ClusterIdle) clusterStatus()       {}
func (ClusterConnecting) clusterStatus() {}
func (ClusterReady) clusterStatus()      {}
func (ClusterError) clusterStatus()      {}

func (ClusterIdle) String() string       { return "idle" }
func (ClusterConnecting) String() string { return "connecting" }
func (ClusterReady) String() string      { return "ready" }
func (ClusterError) String() string      { return "error" }

// SubscriptionStatus tracks a long-lived account or signature subscription.
// It is exactly one of SubscriptionInactive, SubscriptionActivating,
// SubscriptionActive or SubscriptionError.
type SubscriptionStatus interface {
	subscriptionStatus()
	String() string
}

type SubscriptionInactive struct{}

type SubscriptionActivating struct{}

type SubscriptionActive struct{}

// SubscriptionError carries the error that ended the subscription.
type SubscriptionError struct {
	Err error
}

func (SubscriptionInactive) subscriptionStatus()   {}
func (SubscriptionActivating) subscriptionStatus() {}
func (SubscriptionActive) subscriptionStatus()     {}
func (SubscriptionError) subscriptionStatus()      {}

func (SubscriptionInactive) String() string   { return "inactive" }
func (SubscriptionActivating) String() string { return "activating" }
func (SubscriptionActive) String() string     { return "active" }
func (SubscriptionError) String() string      { return "error" }

// TransactionStatus is the lifecycle position of a tracked transaction.
type TransactionStatus string

const (
	TransactionIdle      TransactionStatus = "idle"
	TransactionSending   TransactionStatus = "sending"
	TransactionWaiting   TransactionStatus = "waiting"
	TransactionConfirmed TransactionStatus = "confirmed"
	TransactionFailed    TransactionStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionConfirmed || s == TransactionFailed
}
