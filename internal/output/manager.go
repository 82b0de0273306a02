package output

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type jobOutput struct {
	ID          string
	Name        string
	Status      string
	Message     string
	Progress    string // rendered progress line, empty when idle
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	JobName string
	Error   error
	Time    time.Time
}

type Manager struct {
	outputs     map[string]*jobOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int // Max notice lines kept per job
	errors      []ErrorReport
	doneCh      chan struct{} // Channel to signal stopping the display
	displayTick time.Duration // Interval between display updates
	jobCount    int
	displayWg   sync.WaitGroup // WaitGroup for display goroutine shutdown
}

func NewManager() *Manager {
	return &Manager{
		outputs:     make(map[string]*jobOutput),
		errors:      []ErrorReport{},
		maxStreams:  5,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(id, name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.jobCount++
	m.outputs[id] = &jobOutput{
		ID:          id,
		Name:        name,
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.jobCount,
	}
}

func (m *Manager) SetMessage(id, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetStatus(id, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Status = status
		info.LastUpdated = time.Now()
	}
}

// UpdateProgress renders the job's progress line. With an unknown total the
// bar is replaced by the running byte count.
func (m *Manager) UpdateProgress(id string, current, total int64, detail string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[id]
	if !exists {
		return
	}
	if total > 0 {
		info.Progress = PrintProgressBar(max(0, current), total, 30) + debugStyle.Render(detail)
	} else {
		info.Progress = debugStyle.Render(fmt.Sprintf("%s %s %s", FormatBytes(uint64(max(0, current))), StyleSymbols["bullet"], detail))
	}
	info.LastUpdated = time.Now()
}

func (m *Manager) AddStreamLine(id, line string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		// Wrap the line with indentation
		wrappedLines := wrapText(line, 2+4)
		info.StreamLines = append(info.StreamLines, wrappedLines...)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) Complete(id, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.StreamLines = []string{}
		info.Progress = ""
		if message == "" {
			info.Message = fmt.Sprintf("Completed %s", info.Name)
		} else {
			info.Message = message
		}
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.Progress = ""
		info.LastUpdated = time.Now()
		// Add to global error list
		m.errors = append(m.errors, ErrorReport{
			JobName: info.Name,
			Error:   err,
			Time:    time.Now(),
		})
	}
}

func (m *Manager) ClearAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id := range m.outputs {
		m.outputs[id].StreamLines = []string{}
		m.outputs[id].Progress = ""
	}
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sortJobs() (active, pending, completed []*jobOutput) {
	var allJobs []*jobOutput
	// Sort by index (registration order)
	for _, info := range m.outputs {
		allJobs = append(allJobs, info)
	}
	sort.Slice(allJobs, func(i, j int) bool {
		return allJobs[i].Index < allJobs[j].Index
	})
	// Group jobs by status
	for _, j := range allJobs {
		if j.Complete {
			completed = append(completed, j)
		} else if j.Status == "pending" && j.Message == "" && j.Progress == "" {
			pending = append(pending, j)
		} else {
			active = append(active, j)
		}
	}
	return active, pending, completed
}

func (m *Manager) styledMessage(info *jobOutput) string {
	switch info.Status {
	case "success":
		return successStyle.Render(info.Message)
	case "error":
		return errorStyle.Render(info.Message)
	case "warning":
		return warningStyle.Render(info.Message)
	default: // pending or other
		return pendingStyle.Render(info.Message)
	}
}

// printJob renders one job's status line, progress line, and notices, and
// returns the updated line count.
func (m *Manager) printJob(info *jobOutput, availableLines, lineCount int) int {
	statusDisplay := m.GetStatusIndicator(info.Status)
	elapsed := time.Since(info.StartTime).Round(time.Second)
	if info.Complete {
		elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
	}
	fmt.Printf("%s%s %s %s\n", strings.Repeat(" ", 2), statusDisplay, debugStyle.Render(elapsed.String()), m.styledMessage(info))
	lineCount++
	indent := strings.Repeat(" ", 2+4)
	if info.Progress != "" && lineCount < availableLines {
		fmt.Printf("%s%s\n", indent, info.Progress)
		lineCount++
	}
	for _, line := range info.StreamLines {
		if lineCount >= availableLines {
			break
		}
		fmt.Printf("%s%s\n", indent, streamStyle.Render(line))
		lineCount++
	}
	return lineCount
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	// Limit output to terminal height, leaving buffer for the prompt
	availableLines := getTerminalHeight() - 3

	if m.numLines > 0 {
		fmt.Printf("\033[%dA\033[J", m.numLines)
	}

	lineCount := 0
	activeJobs, pendingJobs, completedJobs := m.sortJobs()

	// Calculate how many lines we need
	totalNeeded := 0
	for _, j := range activeJobs {
		totalNeeded += 1 + len(j.StreamLines)
		if j.Progress != "" {
			totalNeeded++
		}
	}
	totalNeeded += len(pendingJobs) + len(completedJobs)

	// If we need more than available, trim completed jobs
	if totalNeeded > availableLines {
		maxCompleted := availableLines - (totalNeeded - len(completedJobs))
		if maxCompleted < 0 {
			maxCompleted = 0
		}
		if len(completedJobs) > maxCompleted {
			completedJobs = completedJobs[len(completedJobs)-maxCompleted:]
		}
	}

	for _, j := range activeJobs {
		if lineCount >= availableLines {
			break
		}
		lineCount = m.printJob(j, availableLines, lineCount)
	}
	for range pendingJobs {
		if lineCount >= availableLines {
			break
		}
		fmt.Printf("%s%s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator("pending"), pendingStyle.Render("Waiting..."))
		lineCount++
	}
	if len(completedJobs) > 10 && lineCount < availableLines {
		PrintInfo(fmt.Sprintf("%s%d downloads completed with hidden status ...", strings.Repeat(" ", 2), len(completedJobs)-8))
		completedJobs = completedJobs[len(completedJobs)-8:]
		lineCount++
	}
	for _, j := range completedJobs {
		if lineCount >= availableLines {
			break
		}
		lineCount = m.printJob(j, availableLines, lineCount)
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.ClearAll()
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(strings.Repeat(" ", 2) + errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Printf("%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Download: %s", err.JobName)))
		fmt.Printf("%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Println()
	var success, failures int
	for _, info := range m.outputs {
		if info.Status == "success" {
			success++
		} else if info.Status == "error" {
			failures++
		}
	}
	succeeded := fmt.Sprintf("Completed %d of %d", success, len(m.outputs))
	failed := fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))
	fmt.Println(strings.Repeat(" ", 2) + success2Style.Render(succeeded))
	if failures > 0 {
		fmt.Println(strings.Repeat(" ", 2) + errorStyle.Render(failed))
	}
	m.displayErrors()
	fmt.Println()
}
