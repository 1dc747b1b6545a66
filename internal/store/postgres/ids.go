package postgres

import (
	"time"

	"github.com/google/uuid"
)

func newMatchID() string { return uuid.New().String() }

func nowUTC() time.Time { return time.Now().UTC() }
