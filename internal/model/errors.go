package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, billing, study, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeUserAlreadyExists   = "USER_ALREADY_EXISTS"
	ErrCodeInvalidEmail        = "INVALID_EMAIL"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodePasswordMismatch    = "PASSWORD_MISMATCH"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken        = "INVALID_TOKEN"
	ErrCodeTokenExpired        = "TOKEN_EXPIRED"
	ErrCodeInvalidOTP          = "INVALID_OTP"
	ErrCodeInvalidImage        = "INVALID_IMAGE"
	ErrCodeFeatureLimitReached = "FEATURE_LIMIT_REACHED"
	ErrCodeBillingUnavailable  = "BILLING_UNAVAILABLE"
	ErrCodeStudySetNotFound    = "STUDY_SET_NOT_FOUND"
	ErrCodeMaterialNotFound    = "MATERIAL_NOT_FOUND"
	ErrCodeInvalidSessionType  = "INVALID_SESSION_TYPE"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeFetchFailed         = "FETCH_FAILED"
)

// NewUnauthorizedError は認証が必要なエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "アカウントが見つかりません。",
		Category: "auth",
		Action:   "メールアドレスを確認するか、新規登録してください。",
	}
}

// NewUserAlreadyExistsError はメールアドレスが登録済みの場合のエラーを生成する。
func NewUserAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserAlreadyExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、パスワード再設定をお試しください。",
	}
}

// NewInvalidEmailError はメールアドレス形式が不正な場合のエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError はパスワードが要件を満たさない場合のエラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードは8文字以上で入力してください。",
		Category: "validation",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewPasswordMismatchError は確認用パスワードが一致しない場合のエラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "確認用パスワードが一致しません。",
		Category: "validation",
		Action:   "同じパスワードを2回入力してください。",
	}
}

// NewInvalidCredentialsError は認証情報が一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidTokenError はトークンが無効または使用済みの場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "リンクが無効です。",
		Category: "auth",
		Action:   "もう一度ログインをやり直してください。",
	}
}

// NewTokenExpiredError はトークンの有効期限が切れている場合のエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "リンクの有効期限が切れています。",
		Category: "auth",
		Action:   "もう一度ログインをやり直して新しいリンクを受け取ってください。",
	}
}

// NewInvalidOTPError は確認コードが一致しないか期限切れの場合のエラーを生成する。
func NewInvalidOTPError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOTP,
		Message:  "確認コードが正しくないか、有効期限が切れています。",
		Category: "auth",
		Action:   "最新の確認コードを入力するか、再送信してください。",
	}
}

// NewInvalidImageError はプロフィール画像キーを解決できない場合のエラーを生成する。
func NewInvalidImageError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  "アップロードされた画像を確認できませんでした。",
		Category: "validation",
		Action:   "画像をアップロードし直してください。",
	}
}

// NewFeatureLimitReachedError はプランの利用上限に達した場合のエラーを生成する。
func NewFeatureLimitReachedError(featureID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeatureLimitReached,
		Message:  fmt.Sprintf("現在のプランでは %s をこれ以上利用できません。", featureID),
		Category: "billing",
		Action:   "プランをアップグレードするか、翌月までお待ちください。",
	}
}

// NewBillingUnavailableError は課金サービスの確認に失敗した場合のエラーを生成する。
// プラン制限ではなく可用性の問題であることをUIが区別できるようにする。
func NewBillingUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBillingUnavailable,
		Message:  "利用状況を確認できませんでした。",
		Category: "billing",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStudySetNotFoundError は学習セットが見つからない場合のエラーを生成する。
func NewStudySetNotFoundError(studySetID string) *APIError {
	return &APIError{
		Code:     ErrCodeStudySetNotFound,
		Message:  fmt.Sprintf("指定された学習セットが見つかりません: %s", studySetID),
		Category: "study",
		Action:   "学習セットの一覧から選び直してください。",
	}
}

// NewMaterialNotFoundError は学習素材が見つからない場合のエラーを生成する。
func NewMaterialNotFoundError(materialID string) *APIError {
	return &APIError{
		Code:     ErrCodeMaterialNotFound,
		Message:  fmt.Sprintf("指定された学習素材が見つかりません: %s", materialID),
		Category: "study",
		Action:   "素材の一覧から選び直してください。",
	}
}

// NewInvalidSessionTypeError は学習セッション種別が不正な場合のエラーを生成する。
func NewInvalidSessionTypeError(sessionType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSessionType,
		Message:  fmt.Sprintf("無効なセッション種別です: %s", sessionType),
		Category: "validation",
		Action:   "セッション種別には quiz または flashcards を指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はWebページ取り込みの取得失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "study",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}
