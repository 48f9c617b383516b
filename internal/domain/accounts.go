package domain

// Каталог счетов куба, на которые ссылаются правила и шлюзы.
// Коды — члены измерения Account консолидационной модели.
const (
	AcctTotalDebits  = "TotalDebits"
	AcctTotalCredits = "TotalCredits"

	AcctTotalAssets      = "TotalAssets"
	AcctTotalLiabilities = "TotalLiabilities"
	AcctTotalEquity      = "TotalEquity"

	AcctTotalRevenue = "TotalRevenue"
	AcctTotalCOGS    = "TotalCOGS"
	AcctGrossProfit  = "GrossProfit"
	AcctTotalOpex    = "TotalOpex"
	AcctCash         = "CashAndEquivalents"

	AcctRawMaterials   = "RawMaterials"
	AcctWorkInProgress = "WorkInProgress"
	AcctFinishedGoods  = "FinishedGoods"

	AcctHeadcount  = "Headcount"
	AcctFTE        = "FTE"
	AcctProduction = "ProductionVolume"

	AcctICReceivable = "ICReceivable"
	AcctICPayable    = "ICPayable"
	AcctICRevenue    = "ICRevenue"
	AcctICCOGS       = "ICCOGS"
)

// RequiredAccounts — счета, обязанные иметь ненулевое значение перед сабмитом.
// Один и тот же список используют правило валидации и одноименный шлюз.
var RequiredAccounts = []string{
	AcctTotalRevenue,
	AcctTotalCOGS,
	AcctGrossProfit,
	AcctTotalOpex,
}

// InventoryAccounts — складские счета, отрицательный остаток недопустим.
var InventoryAccounts = []string{
	AcctRawMaterials,
	AcctWorkInProgress,
	AcctFinishedGoods,
}

// StatAccounts — статистические счета; пропуски дают Warning, не блокировку.
var StatAccounts = []string{
	AcctHeadcount,
	AcctFTE,
	AcctProduction,
}

// VarianceAccount — элемент P&L-списка для контроля отклонений от бюджета.
// Expense-счета благоприятны при факте ниже бюджета, revenue — наоборот.
type VarianceAccount struct {
	Code    string
	Name    string
	Expense bool
}

// VarianceAccounts — фиксированный P&L-список шлюза комментариев и скана алертов.
var VarianceAccounts = []VarianceAccount{
	{Code: AcctTotalRevenue, Name: "Total Revenue", Expense: false},
	{Code: AcctTotalCOGS, Name: "Cost of Goods Sold", Expense: true},
	{Code: AcctGrossProfit, Name: "Gross Profit", Expense: false},
	{Code: AcctTotalOpex, Name: "Total Operating Expenses", Expense: true},
}

// ScenarioActual — сценарий факта; переходы по нему не требуют менеджерского
// одобрения. Бюджет/прогнозы (Budget, RF03...) — требуют.
const (
	ScenarioActual = "Actual"
	ScenarioBudget = "Budget"
)

// BaseEntities — базовые юрлица консолидационного периметра.
// Используются как фоллбэк списка IC-контрагентов, когда он не настроен.
var BaseEntities = []string{
	"US01", "US02", "DE01", "UK01", "FR01", "CN01",
	"JP01", "AU01", "BR01", "IN01", "MX01", "SG01",
}
