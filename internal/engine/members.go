package engine

import "sync"

type member struct {
	assetID   string
	embedding []float32
}

// memberStore 聚类到成员向量的内存映射。统计、合并归属迁移和
// 阈值重评估都需要回看成员向量，目录本身只存运行和。
// 并入源聚类的提交可能在合并落地后才走到成员登记这一步，
// 向量已计入合并后的运行和，forward把迟到的登记改挂到合并目标。
type memberStore struct {
	mu        sync.RWMutex
	byCluster map[string][]member
	byAsset   map[string]string // asset id -> cluster id
	forward   map[string]string // merged source id -> target id
}

func newMemberStore() *memberStore {
	return &memberStore{
		byCluster: make(map[string][]member),
		byAsset:   make(map[string]string),
		forward:   make(map[string]string),
	}
}

// resolveLocked 沿合并转发链找到存活的聚类id。id为uuid不复用，
// 链上不会出现环。
func (m *memberStore) resolveLocked(clusterID string) string {
	for {
		target, ok := m.forward[clusterID]
		if !ok {
			return clusterID
		}
		clusterID = target
	}
}

// add 登记成员并返回实际归属的聚类id
func (m *memberStore) add(clusterID, assetID string, emb []float32) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	clusterID = m.resolveLocked(clusterID)
	m.byCluster[clusterID] = append(m.byCluster[clusterID], member{assetID: assetID, embedding: emb})
	m.byAsset[assetID] = clusterID
	return clusterID
}

func (m *memberStore) remove(clusterID, assetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.byCluster[clusterID]
	for i, e := range entries {
		if e.assetID == assetID {
			m.byCluster[clusterID] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(m.byCluster[clusterID]) == 0 {
		delete(m.byCluster, clusterID)
	}
	delete(m.byAsset, assetID)
}

// moveAll 把源聚类的全部成员改挂到目标聚类，并记下转发关系
func (m *memberStore) moveAll(fromClusterID, toClusterID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forward[fromClusterID] = toClusterID
	toClusterID = m.resolveLocked(toClusterID)
	moved := m.byCluster[fromClusterID]
	if len(moved) == 0 {
		delete(m.byCluster, fromClusterID)
		return
	}
	m.byCluster[toClusterID] = append(m.byCluster[toClusterID], moved...)
	delete(m.byCluster, fromClusterID)
	for _, e := range moved {
		m.byAsset[e.assetID] = toClusterID
	}
}

// list 返回聚类成员的拷贝
func (m *memberStore) list(clusterID string) []member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]member(nil), m.byCluster[clusterID]...)
}

func (m *memberStore) clusterOf(assetID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byAsset[assetID]
	return id, ok
}
