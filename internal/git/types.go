package git

// Identity is a platform user reference
type Identity struct {
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// CommitRef is a commit pointer
type CommitRef struct {
	CommitID string `json:"commitId"`
}

// PullRequest is the PR metadata returned by the platform
type PullRequest struct {
	PullRequestID        int       `json:"pullRequestId"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Status               string    `json:"status"`
	SourceRefName        string    `json:"sourceRefName"`
	TargetRefName        string    `json:"targetRefName"`
	CreatedBy            Identity  `json:"createdBy"`
	LastMergeSourceCommit CommitRef `json:"lastMergeSourceCommit"`
	LastMergeTargetCommit CommitRef `json:"lastMergeTargetCommit"`
}

// IterationChange is one changed file within a PR iteration
type IterationChange struct {
	ChangeType string `json:"changeType"`
	Item       struct {
		Path string `json:"path"`
	} `json:"item"`
	SourceServerItem string `json:"sourceServerItem,omitempty"`
}

// iterationChangesResponse wraps the iteration-changes list
type iterationChangesResponse struct {
	ChangeEntries []IterationChange `json:"changeEntries"`
}

// iteration is one PR iteration
type iteration struct {
	ID int `json:"id"`
}

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

// VersionType tags a version argument
type VersionType string

const (
	VersionBranch VersionType = "branch"
	VersionCommit VersionType = "commit"
	VersionTag    VersionType = "tag"
)

// Version is a tagged version argument for diff and content requests
type Version struct {
	Value string
	Type  VersionType
}

// fileDiffResponse is the per-path diff payload. Some responses carry only
// change metadata without line blocks; the client then synthesizes the diff
// from file contents.
type fileDiffResponse struct {
	Path       string `json:"path"`
	ChangeType string `json:"changeType"`
	DiffText   string `json:"diffText,omitempty"`
}

// Comment is one comment within a thread
type Comment struct {
	ID          int        `json:"id"`
	Content     string     `json:"content"`
	CommentType string     `json:"commentType"`
	Author      Identity   `json:"author"`
	UsersLiked  []Identity `json:"usersLiked,omitempty"`
}

// ThreadContext anchors a thread to a file and line
type ThreadContext struct {
	FilePath       string        `json:"filePath,omitempty"`
	RightFileStart *FilePosition `json:"rightFileStart,omitempty"`
	RightFileEnd   *FilePosition `json:"rightFileEnd,omitempty"`
}

// FilePosition is a line/offset pair
type FilePosition struct {
	Line   int `json:"line"`
	Offset int `json:"offset"`
}

// Thread is one PR comment thread
type Thread struct {
	ID            int            `json:"id"`
	Status        string         `json:"status"`
	Comments      []Comment      `json:"comments"`
	ThreadContext *ThreadContext `json:"threadContext,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// newThreadRequest is the create-thread payload
type newThreadRequest struct {
	Comments      []newComment   `json:"comments"`
	Status        string         `json:"status"`
	ThreadContext *ThreadContext `json:"threadContext,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

type newComment struct {
	Content     string `json:"content"`
	CommentType string `json:"commentType"`
}
