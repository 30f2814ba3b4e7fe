package ledger

// Rent parameters
const (
	AccountStorageOverhead = 128
	LamportsPerByteYear    = 3480
	ExemptionYears         = 2
)

// RentExemptMinimum returns the balance an account holding dataLen bytes
// must keep to stay rent exempt.
func RentExemptMinimum(dataLen int) uint64 {
	return uint64(AccountStorageOverhead+dataLen) * LamportsPerByteYear * ExemptionYears
}
