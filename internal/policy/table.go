package policy

// Table は認可対象のテーブル名。
type Table string

const (
	TableProfiles   Table = "profiles"
	TableCategories Table = "categories"
	TableProducts   Table = "products"
	TableOrders     Table = "orders"
	TableOrderItems Table = "order_items"
	TableReviews    Table = "reviews"
)

// Tables はRLSポリシーの生成順を固定するためのテーブル一覧。
var Tables = []Table{
	TableProfiles,
	TableCategories,
	TableProducts,
	TableOrders,
	TableOrderItems,
	TableReviews,
}

// Operation は認可対象のCRUD操作。
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations はRLSポリシーの生成順を固定するための操作一覧。
var Operations = []Operation{OpCreate, OpRead, OpUpdate, OpDelete}

// withAdmin は管理者override規則を先頭に足した規則連鎖を返す。
func withAdmin(rules ...rule) []rule {
	return append([]rule{adminRule}, rules...)
}

// policyTable は(テーブル, 操作)ごとの許可規則の連鎖。
// 連鎖は先頭から順に評価され、最初にAllowを返した規則で許可が確定する。
// 全規則がSkipしたまま連鎖が尽きれば拒否。Denyの先行規則は存在しない。
//
// 管理者overrideは全連鎖の先頭にOR句として追加される。
// 唯一の例外はプロフィールの作成で、Identity作成時の自動処理だけが
// DecisionContext経由で通過できる（連鎖は空＝常に拒否）。
var policyTable = map[Table]map[Operation][]rule{
	TableProfiles: {
		OpCreate: nil,
		OpRead:   withAdmin(selfRule),
		OpUpdate: withAdmin(selfRule),
		OpDelete: withAdmin(),
	},
	TableCategories: {
		OpCreate: withAdmin(),
		OpRead:   withAdmin(anyoneRule),
		OpUpdate: withAdmin(),
		OpDelete: withAdmin(),
	},
	TableProducts: {
		OpCreate: withAdmin(),
		OpRead:   withAdmin(anyoneRule),
		OpUpdate: withAdmin(),
		OpDelete: withAdmin(),
	},
	TableOrders: {
		OpCreate: withAdmin(ownerRule),
		OpRead:   withAdmin(ownerRule),
		OpUpdate: withAdmin(),
		OpDelete: withAdmin(),
	},
	TableOrderItems: {
		OpCreate: withAdmin(parentOrderOwnerRule),
		OpRead:   withAdmin(parentOrderOwnerRule),
		OpUpdate: withAdmin(),
		OpDelete: withAdmin(),
	},
	TableReviews: {
		OpCreate: withAdmin(ownerRule),
		OpRead:   withAdmin(anyoneRule),
		OpUpdate: withAdmin(ownerRule),
		OpDelete: withAdmin(ownerRule),
	},
}
