package positions

import "github.com/pkg/errors"

var (
	// ErrAlreadyClosed — позицию уже закрыл другой путь (тик/свип/другой
	// инстанс). Для координатора это успех, а не ошибка.
	ErrAlreadyClosed = errors.New("position already closed")

	// ErrNotFound — позиции нет в БД (кеш отстал).
	ErrNotFound = errors.New("position not found")

	// ErrWriteConflict — условный апдейт проиграл гонку.
	ErrWriteConflict = errors.New("position close write conflict")
)
