package extract

// RulesVersion identifies the rule tables below. It is part of every cache key,
// so editing a table must bump it.
const RulesVersion = "vi-2024.06.3"

// Patterns run against folded text (lowercase, no diacritics, đ -> d).

// BoundKind says which budget fields a rule sets.
type BoundKind int

// Budget rule kinds.
const (
	BoundRange  BoundKind = iota // both bounds from {A} and {B}
	BoundMax                     // budget_max from {A}
	BoundMin                     // budget_min from {A}
	BoundAround                  // ±AroundTolerance around {A}
	BoundBare                    // budget_max from {A}, only when {A} carries a unit
)

// AroundTolerance is the band applied to "khoảng/tầm X".
const AroundTolerance = 0.10

// BudgetRule is one row of the budget table. {A} and {B} expand to the amount grammar.
// RequireUnit rejects matches in which no amount carries an explicit unit.
type BudgetRule struct {
	Name        string
	Pattern     string
	Kind        BoundKind
	RequireUnit bool
}

// BudgetRules are tried in order; a span consumed by an earlier rule is not reused and a
// bound set by an earlier rule is not overwritten.
var BudgetRules = []BudgetRule{
	{
		Name:    "range_from_to",
		Pattern: `\b(?:tu|from|khoang tu|trong khoang)\s+{A}\s*(?:den|toi|to|-|–|~)\s*{B}`,
		Kind:    BoundRange,
	},
	{
		Name:        "range_dash",
		Pattern:     `{A}\s*(?:-|–|~|den|toi|to)\s*{B}`,
		Kind:        BoundRange,
		RequireUnit: true,
	},
	{
		Name:    "max_suffix",
		Pattern: `{A}\s*(?:tro xuong|tro lai|do lai|or less|or below)\b`,
		Kind:    BoundMax,
	},
	{
		Name:    "min_suffix",
		Pattern: `{A}\s*(?:tro len|or more|or above)\b`,
		Kind:    BoundMin,
	},
	{
		Name:    "max_prefix",
		Pattern: `(?:\b(?:duoi|under|below|khong qua|toi da|max|nho hon|it hon|re hon|chi co|budget max)|<=?)\s*{A}`,
		Kind:    BoundMax,
	},
	{
		Name:    "min_prefix",
		Pattern: `(?:\b(?:tren|over|above|hon|toi thieu|min|it nhat|tu|cao hon)|>=?)\s*{A}`,
		Kind:    BoundMin,
	},
	{
		Name:    "around",
		Pattern: `\b(?:khoang|tam|around|about|chung|gia|ngan sach|budget|tai chinh)\s*{A}`,
		Kind:    BoundAround,
	},
	{
		Name:        "bare_amount",
		Pattern:     `{A}`,
		Kind:        BoundBare,
		RequireUnit: true,
	},
}

// DefaultMinDiscount is the threshold set by a discount keyword without a percentage.
const DefaultMinDiscount = 10

// DiscountRule is one row of the discount table. A pattern may capture the
// percentage in a group named pct; without it the rule sets DefaultMinDiscount.
type DiscountRule struct {
	Name    string
	Pattern string
}

// DiscountRules run before the budget rules so that "giảm giá 20%" is not read
// as a 20 million budget.
var DiscountRules = []DiscountRule{
	{
		Name:    "discount_percent",
		Pattern: `\b(?:giam gia|giam|sale|khuyen mai|discount|uu dai)\s*(?:tren|toi thieu|it nhat|tu|hon|den|toi|over|at least|up to)?\s*(?P<pct>\d{1,3})\s*%`,
	},
	{
		Name:    "percent_off",
		Pattern: `\b(?P<pct>\d{1,3})\s*%\s*off\b`,
	},
	{
		Name:    "discount_keyword",
		Pattern: `\b(?:dang giam gia|giam gia|khuyen mai|dang sale|sale off|sale|discount|uu dai)\b`,
	},
}

// Unit multipliers. Million-class units also accept a trailing fraction ("1tr5").
var (
	MillionUnits = map[string]float64{
		"trieu": 1e6,
		"tr":    1e6,
		"cu":    1e6,
		"ty":    1e9,
		"ti":    1e9,
	}
	PlainUnits = map[string]float64{
		"k":     1e3,
		"nghin": 1e3,
		"ngan":  1e3,
		"m":     1e6,
		"dong":  1,
		"vnd":   1,
		"d":     1,
	}
)

// ShorthandMillionLimit: a qualified amount without unit below this value is read in millions.
const ShorthandMillionLimit = 1000

// MaxBudget caps plausible amounts; larger values are treated as noise.
const MaxBudget = 10_000_000_000_000

// DictEntry maps aliases to one canonical value (a brand name or a feature tag).
type DictEntry struct {
	Canonical string
	Aliases   []string
}

// BrandTable maps aliases and common misspellings to canonical brand names.
var BrandTable = []DictEntry{
	{"Apple", []string{"apple", "iphone", "ipone", "iphon", "ip", "ios", "ipad", "macbook"}},
	{"Samsung", []string{"samsung", "samsum", "sam sung", "samsun", "galaxy", "ss"}},
	{"Xiaomi", []string{"xiaomi", "xiao mi", "xiaomy", "xaomi", "redmi", "poco", "mi"}},
	{"OPPO", []string{"oppo", "opo", "find x", "reno"}},
	{"Vivo", []string{"vivo", "iqoo"}},
	{"Realme", []string{"realme", "real me"}},
	{"OnePlus", []string{"oneplus", "one plus"}},
	{"Nokia", []string{"nokia"}},
	{"ASUS", []string{"asus", "rog phone", "rog", "zenfone"}},
	{"Motorola", []string{"motorola", "moto"}},
	{"Lenovo", []string{"lenovo"}},
	{"Honor", []string{"honor"}},
	{"Huawei", []string{"huawei"}},
	{"Google", []string{"google pixel", "pixel"}},
	{"Tecno", []string{"tecno"}},
	{"Infinix", []string{"infinix"}},
	{"Nothing", []string{"nothing phone"}},
}

// FeatureTable maps keywords to feature tags.
var FeatureTable = []DictEntry{
	{"camera", []string{"chup anh", "chup hinh", "camera", "quay video", "quay phim", "selfie", "zoom", "chup dem", "night mode", "portrait", "chup xoa phong"}},
	{"battery_life", []string{"pin trau", "pin khoe", "pin lau", "pin tot", "pin", "battery", "thoi luong pin", "dung lau"}},
	{"fast_charging", []string{"sac nhanh", "fast charging", "sac sieu nhanh"}},
	{"performance", []string{"gaming", "choi game", "game", "hieu nang", "cau hinh manh", "cau hinh cao", "fps", "muot", "chip manh"}},
	{"display", []string{"man hinh dep", "man hinh lon", "man hinh", "amoled", "oled", "120hz", "144hz", "display"}},
	{"storage", []string{"bo nho lon", "dung luong lon", "bo nho", "storage", "512gb", "1tb"}},
	{"design", []string{"thiet ke", "design", "mong nhe", "nho gon", "sang trong"}},
	{"livestream", []string{"livestream", "live stream", "tiktok", "quay tiktok"}},
	{"security", []string{"bao mat", "van tay", "face id", "fingerprint", "security"}},
	{"connectivity", []string{"5g", "nfc", "wifi 7", "esim", "2 sim"}},
	{"durability", []string{"chong nuoc", "chong bui", "ip68", "ip67", "do ben", "ben bi"}},
	{"cheap", []string{"gia re", "re", "cheap", "binh dan", "tiet kiem", "sinh vien", "gia tot", "budget phone"}},
}

// Fillers are folded words that carry no search intent and are dropped from the residual text.
var Fillers = []string{
	"gia", "mua", "can", "tim", "cho", "toi", "minh", "em", "anh", "chi", "muon", "nao",
	"khong", "voi", "va", "cua", "la", "mot", "cai", "chiec", "loai", "dong", "vnd", "nhe",
	"a", "oi", "hay", "giup", "xem", "nhung", "cac", "duoc", "thi", "nhu", "the", "i", "want",
	"need", "show", "me", "find", "some", "with", "for", "please", "an", "trieu", "tr", "k", "dang",
}
