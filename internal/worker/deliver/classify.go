package deliver

import (
	"errors"

	"github.com/hitoshi/remindman/internal/notify"
)

// SendResult は送信エラーの分類。
type SendResult int

const (
	// SendResultRetry はリトライ可能な失敗（ネットワーク/タイムアウト/429/5xx）。
	// リマインダーは未配送のまま残り、次のポーリングサイクルで自然に再試行される。
	SendResultRetry SendResult = iota
	// SendResultStop は恒久的な失敗（400/403/404/410）。
	// 例: ユーザーがボットをブロックした（403）、チャットが存在しない（400）。
	// 再送しても成功しないため、無限リトライを避けて打ち切る。
	SendResultStop
)

// ClassifySendError は送信エラーをリトライ可否で分類する。
// HTTPステータスを持たないエラー（ネットワーク断、タイムアウト等）はすべて
// リトライ可能として扱う。
func ClassifySendError(err error) SendResult {
	var carrier notify.HTTPStatusCarrier
	if !errors.As(err, &carrier) {
		return SendResultRetry
	}

	status := carrier.HTTPStatus()
	switch {
	case status == 400 || status == 403 || status == 404 || status == 410:
		return SendResultStop
	case status == 429:
		return SendResultRetry
	case status >= 500:
		return SendResultRetry
	default:
		return SendResultRetry
	}
}

// StatusCodeOf は送信エラーからHTTPステータスコードを取り出す。
// ステータスを持たないエラーの場合は0を返す。メトリクス記録用。
func StatusCodeOf(err error) int {
	var carrier notify.HTTPStatusCarrier
	if errors.As(err, &carrier) {
		return carrier.HTTPStatus()
	}
	return 0
}
