package repository

// Store groups the postgres repositories behind one value.
type Store struct {
	*ChargerRepository
	*StatusLogRepository
	*TransactionRepository
	*AuthTagRepository
	*OCPPLogRepository
}

// NewStore builds every repository on db.
func NewStore(db DB) *Store {
	return &Store{
		ChargerRepository:     NewChargerRepository(db),
		StatusLogRepository:   NewStatusLogRepository(db),
		TransactionRepository: NewTransactionRepository(db),
		AuthTagRepository:     NewAuthTagRepository(db),
		OCPPLogRepository:     NewOCPPLogRepository(db),
	}
}
