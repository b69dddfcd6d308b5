package auth

// Claims representa la identidad de sesión que entrega la capa externa:
// el owner y la réplica (device) desde la que opera. Este core confía en
// estos valores, no los autentica.
type Claims struct {
	UserID    string
	ReplicaID string
	Email     string
}
