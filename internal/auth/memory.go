package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory is a non-persistent Store for development and tests. It mirrors
// the write-side semantics the SQL store guarantees: refresh-token rotation
// is compare-and-set, and password/deactivation writes clear the stored
// refresh token.
type InMemory struct {
	mu           sync.Mutex
	accounts     map[string]*Account
	byEmail      map[string]string
	projects     map[string]*Project
	memberships  map[string]*Membership
	tasks        map[string]*Task
	verifyTokens map[string]oneTimeRecord
	resetTokens  map[string]oneTimeRecord
	audit        []*AuditEntry
	now          func() time.Time

	// failWith, when set, makes every operation return it. Used to test
	// fail-closed behavior.
	failWith error
}

type oneTimeRecord struct {
	hash    string
	expires time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts:     map[string]*Account{},
		byEmail:      map[string]string{},
		projects:     map[string]*Project{},
		memberships:  map[string]*Membership{},
		tasks:        map[string]*Task{},
		verifyTokens: map[string]oneTimeRecord{},
		resetTokens:  map[string]oneTimeRecord{},
		now:          time.Now,
	}
}

func memberKey(accountID, projectID string) string { return accountID + "/" + projectID }

var _ Store = (*InMemory)(nil)

func (m *InMemory) Credentials() CredentialStore { return (*memCredentials)(m) }
func (m *InMemory) Projects() ProjectStore       { return (*memProjects)(m) }
func (m *InMemory) Memberships() MembershipStore { return (*memMemberships)(m) }
func (m *InMemory) Tasks() TaskStore             { return (*memTasks)(m) }
func (m *InMemory) Audit() AuditStore            { return (*memAudit)(m) }

func (m *InMemory) addAccount(a *Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.accounts[a.ID] = &cp
	m.byEmail[a.Email] = a.ID
}

func (m *InMemory) addMembership(accountID, projectID string, role ProjectRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[memberKey(accountID, projectID)] = &Membership{
		AccountID: accountID,
		ProjectID: projectID,
		Role:      role,
	}
}

func (m *InMemory) account(id string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		cp := *a
		return &cp
	}
	return nil
}

type memCredentials InMemory

func (m *memCredentials) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.byEmail[a.Email]; ok {
		return ErrConflict
	}
	cp := *a
	m.accounts[a.ID] = &cp
	m.byEmail[a.Email] = a.ID
	return nil
}

func (m *memCredentials) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memCredentials) FindByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.accounts[id]
	return &cp, nil
}

func (m *memCredentials) UpdateRefreshToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.RefreshToken = token
	return nil
}

func (m *memCredentials) RotateRefreshToken(_ context.Context, id, old, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if a.RefreshToken != old {
		return ErrTokenMismatch
	}
	a.RefreshToken = next
	return nil
}

func (m *memCredentials) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.RefreshToken = ""
	delete(m.resetTokens, id)
	return nil
}

func (m *memCredentials) UpdateRole(_ context.Context, id string, role GlobalRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Role = role
	return nil
}

func (m *memCredentials) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Active = active
	if !active {
		a.RefreshToken = ""
	}
	return nil
}

func (m *memCredentials) SetVerifyToken(_ context.Context, id, tokenHash string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	m.verifyTokens[id] = oneTimeRecord{hash: tokenHash, expires: expires}
	return nil
}

func (m *memCredentials) FindByVerifyToken(_ context.Context, tokenHash string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for id, rec := range m.verifyTokens {
		if rec.hash == tokenHash && m.now().Before(rec.expires) {
			cp := *m.accounts[id]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memCredentials) MarkEmailVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.EmailVerified = true
	delete(m.verifyTokens, id)
	return nil
}

func (m *memCredentials) SetResetToken(_ context.Context, id, tokenHash string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	m.resetTokens[id] = oneTimeRecord{hash: tokenHash, expires: expires}
	return nil
}

func (m *memCredentials) FindByResetToken(_ context.Context, tokenHash string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for id, rec := range m.resetTokens {
		if rec.hash == tokenHash && m.now().Before(rec.expires) {
			cp := *m.accounts[id]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

type memMemberships InMemory

func (m *memMemberships) Find(_ context.Context, accountID, projectID string) (*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	ms, ok := m.memberships[memberKey(accountID, projectID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ms
	return &cp, nil
}

func (m *memMemberships) ListByProject(_ context.Context, projectID string) ([]*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*Membership
	for _, ms := range m.memberships {
		if ms.ProjectID == projectID {
			cp := *ms
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memMemberships) Add(_ context.Context, ms *Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	key := memberKey(ms.AccountID, ms.ProjectID)
	if _, ok := m.memberships[key]; ok {
		return ErrConflict
	}
	cp := *ms
	m.memberships[key] = &cp
	return nil
}

func (m *memMemberships) AssignManager(_ context.Context, projectID, accountID string) (*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, ms := range m.memberships {
		if ms.ProjectID == projectID && ms.Role == RoleProjectManager {
			ms.Role = RoleTeamMember
		}
	}
	target, ok := m.memberships[memberKey(accountID, projectID)]
	if !ok {
		target = &Membership{AccountID: accountID, ProjectID: projectID, CreatedAt: m.now()}
		m.memberships[memberKey(accountID, projectID)] = target
	}
	target.Role = RoleProjectManager
	cp := *target
	return &cp, nil
}

func (m *memMemberships) Remove(_ context.Context, projectID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	key := memberKey(accountID, projectID)
	if _, ok := m.memberships[key]; !ok {
		return ErrNotFound
	}
	delete(m.memberships, key)
	for _, task := range m.tasks {
		if task.ProjectID == projectID && task.AssignedTo == accountID {
			task.AssignedTo = ""
		}
	}
	return nil
}

type memAudit InMemory

func (m *memAudit) Append(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	cp := *entry
	m.audit = append(m.audit, &cp)
	return nil
}

type memProjects InMemory

func (m *memProjects) Create(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.projects {
		if existing.Name == p.Name {
			return ErrConflict
		}
	}
	cp := *p
	m.projects[p.ID] = &cp
	m.memberships[memberKey(p.CreatedBy, p.ID)] = &Membership{
		AccountID: p.CreatedBy,
		ProjectID: p.ID,
		Role:      RoleProjectHead,
		CreatedAt: p.CreatedAt,
	}
	return nil
}

func (m *memProjects) FindByID(_ context.Context, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProjects) FindByName(_ context.Context, name string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, p := range m.projects {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memProjects) Update(_ context.Context, id string, displayName, description *string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	if displayName != nil {
		p.DisplayName = *displayName
	}
	if description != nil {
		p.Description = *description
	}
	p.UpdatedAt = m.now()
	cp := *p
	return &cp, nil
}

func (m *memProjects) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	for tid, t := range m.tasks {
		if t.ProjectID == id {
			delete(m.tasks, tid)
		}
	}
	for key, ms := range m.memberships {
		if ms.ProjectID == id {
			delete(m.memberships, key)
		}
	}
	delete(m.projects, id)
	return nil
}

func (m *memProjects) List(_ context.Context, limit, offset int) ([]*Project, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, 0, m.failWith
	}
	var all []*Project
	for _, p := range m.projects {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memProjects) ListByMember(_ context.Context, accountID string) ([]*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var result []*Project
	for _, ms := range m.memberships {
		if ms.AccountID == accountID {
			if p, ok := m.projects[ms.ProjectID]; ok {
				cp := *p
				result = append(result, &cp)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

type memTasks InMemory

func (m *memTasks) Find(_ context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) ListByProject(_ context.Context, projectID string) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var result []*Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *memTasks) Create(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.tasks[t.ID]; ok {
		return ErrConflict
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTasks) Update(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	cp.UpdatedAt = m.now()
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTasks) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}
