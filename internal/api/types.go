package api

// Page is the paging wrapper of list replies.
type Page[T any] struct {
	Total      int `mapstructure:"total"`
	PageNumber int `mapstructure:"pageNumber"`
	PageSize   int `mapstructure:"pageSize"`
	Pages      int `mapstructure:"pages"`
	List       []T `mapstructure:"list"`
}

// RecentSearch is one entry of the recent-search history.
type RecentSearch struct {
	ID         int64  `mapstructure:"id" json:"id"`
	SearchWord string `mapstructure:"searchWord" json:"searchWord"`
	SearchTime string `mapstructure:"searchTime" json:"searchTime"`
}

// Sort directions for OrderInfo.
const (
	OrderAsc  = 0
	OrderDesc = 1
)

// OrderInfo is one sort key of a paper query.
type OrderInfo struct {
	OrderWord string `json:"orderWord"`
	OrderID   int    `json:"orderId"`
}

// DefaultPaperOrder sorts by publication date, then citations, then tags,
// all descending.
func DefaultPaperOrder() []OrderInfo {
	return []OrderInfo{
		{OrderWord: "published_date", OrderID: OrderDesc},
		{OrderWord: "citations", OrderID: OrderDesc},
		{OrderWord: "tags", OrderID: OrderDesc},
	}
}

type paperQuery struct {
	TaskID    int64       `json:"taskId"`
	PageIndex int         `json:"pageIndex"`
	PageSize  int         `json:"pageSize"`
	OrderInfo []OrderInfo `json:"orderInfo"`
}

type venueInfo struct {
	StandardName string  `mapstructure:"standardName"`
	Acronym      string  `mapstructure:"acronym"`
	Type         int     `mapstructure:"type"`
	SCIRank      string  `mapstructure:"sciRank"`
	CCFRank      string  `mapstructure:"ccfRank"`
	SCIIF        float64 `mapstructure:"sciIf"`
	SCIUp        string  `mapstructure:"sciUp"`
	SCIUpSmall   string  `mapstructure:"sciUpSmall"`
	CORERank     string  `mapstructure:"coreRank"`
}

type rawPaper struct {
	ID            int64      `mapstructure:"id"`
	Title         string     `mapstructure:"title"`
	PublishedDate string     `mapstructure:"publishedDate"`
	Authors       string     `mapstructure:"authors"`
	PaperAbstract string     `mapstructure:"paperAbstract"`
	AIAbstract    string     `mapstructure:"aiAbstract"`
	DOI           string     `mapstructure:"doi"`
	VenueInfo     *venueInfo `mapstructure:"venueInfo"`
	Citations     int        `mapstructure:"citations"`
	Keywords      string     `mapstructure:"keywords"`
	AbstractURL   string     `mapstructure:"abstractUrl"`
	PDFURL        string     `mapstructure:"pdfUrl"`
}

// Venue types.
const (
	VenueJournal    = "journal"
	VenueConference = "conference"
)

// Paper is a search result ready for display.
type Paper struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Abstract     string   `json:"abstract"`
	Authors      []string `json:"authors"`
	Year         int      `json:"year"`
	Journal      string   `json:"journal"`
	VenueType    string   `json:"venueType"`
	CCFLevel     string   `json:"ccfLevel,omitempty"`
	SCILevel     string   `json:"sciLevel,omitempty"`
	CORELevel    string   `json:"coreLevel,omitempty"`
	JCRLevel     string   `json:"jcrLevel,omitempty"`
	SCIUpFull    string   `json:"sciUpFull,omitempty"`
	ImpactFactor float64  `json:"impactFactor,omitempty"`
	Keywords     []string `json:"keywords"`
	Summary      string   `json:"summary"`
	Citations    int      `json:"citations"`
	DOI          string   `json:"doi,omitempty"`
	Link         string   `json:"link,omitempty"`
	PDFURL       string   `json:"pdfUrl,omitempty"`
}

// SearchResult is one page of papers for a task.
type SearchResult struct {
	Papers       []Paper `json:"papers"`
	TotalPages   int     `json:"totalPages"`
	CurrentPage  int     `json:"currentPage"`
	PageSize     int     `json:"pageSize"`
	TotalResults int     `json:"totalResults"`
}

// SearchTags narrows a submitted search.
type SearchTags struct {
	YearTag int `json:"yearTag"`
	// PaperTag filters by venue kind; nil means no filter.
	PaperTag *string `json:"paperTag"`
	// SourceTag is one of ALL, ARXIV, DBLP, GOOGLE_SCHOLAR.
	SourceTag string `json:"sourceTag"`
}

// SearchRequest submits a new search task.
type SearchRequest struct {
	SearchWord string     `json:"searchWord"`
	Keywords   []string   `json:"keywords"`
	Tags       SearchTags `json:"tags"`
}

// TaskQuery pages through search tasks.
type TaskQuery struct {
	PageIndex int    `json:"pageIndex"`
	PageSize  int    `json:"pageSize"`
	OrderWord string `json:"orderWord,omitempty"`
	// OrderID is OrderAsc or OrderDesc; nil leaves ordering to the backend.
	OrderID *int `json:"orderId,omitempty"`
}

type rawTask struct {
	ID           int64  `mapstructure:"id"`
	SearchWord   string `mapstructure:"searchWord"`
	Keywords     string `mapstructure:"keywords"`
	TaskState    string `mapstructure:"taskState"`
	ErrorMessage string `mapstructure:"errorMessage"`
	SearchTime   string `mapstructure:"searchTime"`
}

// Task display statuses.
const (
	StatusSearching = "searching"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Task is a search task ready for display.
type Task struct {
	ID           int64    `json:"id"`
	TaskName     string   `json:"taskName"`
	SearchTerm   string   `json:"searchTerm"`
	Keywords     []string `json:"keywords"`
	Date         string   `json:"date"`
	Progress     string   `json:"progress"`
	Status       string   `json:"status"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
}

// TaskList is one page of tasks.
type TaskList struct {
	Tasks    []Task `json:"tasks"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// Backend task states.
const (
	StatePending   = "PENDING"
	StateRunning   = "RUNNING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

// TaskStatus is the live state of one task.
type TaskStatus struct {
	State        string `mapstructure:"state" json:"state"`
	ErrorMessage string `mapstructure:"errorMessage" json:"errorMessage,omitempty"`
}

// Terminal reports whether the task will not change state on its own.
func (s TaskStatus) Terminal() bool {
	switch s.State {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}
