// Package paginator обходит постраничные API до терминальной страницы и склеивает результаты.
package paginator

import (
	"context"
	"errors"
	"time"
)

// ErrNoData возвращается функцией загрузки страницы, когда данных нет.
// Обход завершается без ошибки с уже накопленными элементами.
var ErrNoData = errors.New("paginator: no data")

// Pause выдерживает паузу между завершением одного запроса и началом следующего.
type Pause interface {
	Sleep(ctx context.Context) error
}

// FixedPause спит заданное время, прерываясь по ctx. Значение <= 0 не ждёт.
type FixedPause time.Duration

// Sleep реализует Pause.
func (p FixedPause) Sleep(ctx context.Context) error {
	return Sleep(ctx, time.Duration(p))
}

// Sleep ждёт d или отмены ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CursorPage описывает страницу курсорной пагинации.
type CursorPage[T any] struct {
	Items []T
	// Курсор следующей страницы (last_id).
	Next string
	// HasNext, если задан, явно сообщает о наличии следующей страницы.
	HasNext *bool
}

// CursorFetch загружает страницу по курсору; для первой страницы курсор пустой.
type CursorFetch[T any] func(ctx context.Context, cursor string) (CursorPage[T], error)

// Cursor обходит страницы, пока курсор меняется и страница не пуста.
// pause выдерживается после каждой нетерминальной страницы.
func Cursor[T any](ctx context.Context, pause Pause, fetch CursorFetch[T]) ([]T, error) {
	var (
		all    []T
		cursor string
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for first := true; ; first = false {
		if !first {
			if err := sleep(ctx, pause); err != nil {
				return all, err
			}
		}
		page, err := fetch(ctx, cursor)
		if err != nil {
			if errors.Is(err, ErrNoData) {
				return all, nil
			}
			return all, err
		}
		if len(page.Items) == 0 {
			return all, nil
		}
		all = append(all, page.Items...)

		if page.HasNext != nil && !*page.HasNext {
			return all, nil
		}
		if page.Next == "" || page.Next == cursor {
			return all, nil
		}
		cursor = page.Next
	}
}

// OffsetPage описывает страницу пагинации по номеру.
type OffsetPage[T any] struct {
	Items []T
	// Значение поля total из ответа, если API его возвращает.
	Total int
}

// OffsetFetch загружает страницу номер page (с единицы).
type OffsetFetch[T any] func(ctx context.Context, page, pageSize int) (OffsetPage[T], error)

// Done решает, является ли страница последней.
type Done[T any] func(page OffsetPage[T], pageSize int) bool

// ShortPage завершает обход, когда страница вернула меньше pageSize элементов.
func ShortPage[T any](page OffsetPage[T], pageSize int) bool {
	return len(page.Items) < pageSize
}

// TotalBelow завершает обход, когда поле total меньше размера страницы.
func TotalBelow[T any](page OffsetPage[T], pageSize int) bool {
	return page.Total < pageSize
}

// Offset обходит страницы 1, 2, ... до срабатывания done или пустой страницы.
// pause выдерживается после каждой нетерминальной страницы.
func Offset[T any](ctx context.Context, pause Pause, pageSize int, done Done[T], fetch OffsetFetch[T]) ([]T, error) {
	if done == nil {
		done = ShortPage[T]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all []T
	for page := 1; ; page++ {
		if page > 1 {
			if err := sleep(ctx, pause); err != nil {
				return all, err
			}
		}
		res, err := fetch(ctx, page, pageSize)
		if err != nil {
			if errors.Is(err, ErrNoData) {
				return all, nil
			}
			return all, err
		}
		if len(res.Items) == 0 {
			return all, nil
		}
		all = append(all, res.Items...)
		if done(res, pageSize) {
			return all, nil
		}
	}
}

func sleep(ctx context.Context, pause Pause) error {
	if pause == nil {
		return ctx.Err()
	}
	return pause.Sleep(ctx)
}
