package util

import (
	"errors"
	"time"
)

// DateLayout é o formato de datas de calendário aceito pela API.
const DateLayout = "2006-01-02"

// ParseDate interpreta uma data de calendário (sem hora, sem fuso).
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, errors.New("data inválida, use AAAA-MM-DD")
	}
	return t, nil
}

// Hoje devolve a data de calendário corrente em UTC, truncada à meia-noite.
func Hoje() time.Time {
	return TruncateDate(time.Now().UTC())
}

// TruncateDate remove a componente horária mantendo apenas a data em UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
