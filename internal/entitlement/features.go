// Package entitlement はプラン別の機能利用可否判定と使用量記録を提供する。
// 判定は外部の課金SaaSに委譲し、その結果を短期キャッシュする。
package entitlement

// 機能ID。課金SaaS側のfeature_idと一致させる。
const (
	FeatureAIQuestions  = "ai_questions"
	FeatureStudySets    = "study_sets"
	FeatureFileUploads  = "file_uploads"
	FeatureWebScraping  = "web_scraping"
	FeaturePracticeMode = "practice_mode"
	FeatureQuizMode     = "quiz_mode"
	FeatureReviewMode   = "review_mode"
)

// 商品ID。チェックアウトで指定するプラン。
const (
	ProductStarter = "starter"
	ProductPro     = "pro"
	ProductPremium = "premium"
)

// knownFeatures は利用可否判定の対象となる機能IDの集合。
var knownFeatures = map[string]bool{
	FeatureAIQuestions:  true,
	FeatureStudySets:    true,
	FeatureFileUploads:  true,
	FeatureWebScraping:  true,
	FeaturePracticeMode: true,
	FeatureQuizMode:     true,
	FeatureReviewMode:   true,
}

// IsKnownFeature は機能IDが既知かを返す。
func IsKnownFeature(featureID string) bool {
	return knownFeatures[featureID]
}

// knownProducts はチェックアウトで指定できる商品IDの集合。
var knownProducts = map[string]bool{
	ProductStarter: true,
	ProductPro:     true,
	ProductPremium: true,
}

// IsKnownProduct は商品IDが既知かを返す。
func IsKnownProduct(productID string) bool {
	return knownProducts[productID]
}
