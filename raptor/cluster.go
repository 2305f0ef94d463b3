package raptor

import "math"

// Cluster 一次软聚类的结果。Primary 成员以该簇为结构父簇（树边来自这里）；
// Overlap 成员与簇质心的相似度超过阈值，其文本参与该簇的摘要输入，
// 但结构父节点仍归属各自的 Primary 簇，保证每个节点只有一个父节点。
type Cluster struct {
	Primary []int
	Overlap []int
}

const clusterMaxIterations = 20

// softCluster 对嵌入做确定性的软 k-means 聚类（余弦相似度）。
// k 取 √n 量级，质心用最远点启发式初始化，不依赖随机源，
// 相同输入必产生相同划分。threshold 控制跨簇重叠成员的准入。
func softCluster(embeddings [][]float64, threshold float64) []Cluster {
	n := len(embeddings)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []Cluster{{Primary: []int{0}}}
	}

	k := int(math.Round(math.Sqrt(float64(n))))
	if k < 1 {
		k = 1
	}
	if k >= n {
		k = n - 1
	}

	centroids := initCentroids(embeddings, k)
	assign := make([]int, n)

	for iter := 0; iter < clusterMaxIterations; iter++ {
		changed := false
		for i, emb := range embeddings {
			best := 0
			bestSim := math.Inf(-1)
			for c, centroid := range centroids {
				sim := cosine(emb, centroid)
				if sim > bestSim {
					bestSim = sim
					best = c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// 重算质心；空簇保留原质心
		for c := range centroids {
			mean := make([]float64, len(embeddings[0]))
			count := 0
			for i, a := range assign {
				if a != c {
					continue
				}
				for d, v := range embeddings[i] {
					mean[d] += v
				}
				count++
			}
			if count == 0 {
				continue
			}
			for d := range mean {
				mean[d] /= float64(count)
			}
			centroids[c] = mean
		}
	}

	clusters := make([]Cluster, k)
	for i, a := range assign {
		clusters[a].Primary = append(clusters[a].Primary, i)
	}

	// 重叠成员：相似度超过阈值的非主簇
	for i, emb := range embeddings {
		for c := range clusters {
			if c == assign[i] || len(clusters[c].Primary) == 0 {
				continue
			}
			if cosine(emb, centroids[c]) >= threshold {
				clusters[c].Overlap = append(clusters[c].Overlap, i)
			}
		}
	}

	// 丢弃空簇
	out := make([]Cluster, 0, k)
	for _, cl := range clusters {
		if len(cl.Primary) > 0 {
			out = append(out, cl)
		}
	}
	return out
}

// initCentroids 最远点初始化：从索引 0 出发，每次选取与已选质心
// 最大相似度最小的点
func initCentroids(embeddings [][]float64, k int) [][]float64 {
	chosen := []int{0}
	for len(chosen) < k {
		next := -1
		nextSim := math.Inf(1)
		for i := range embeddings {
			maxSim := math.Inf(-1)
			for _, c := range chosen {
				if i == c {
					maxSim = math.Inf(1)
					break
				}
				if sim := cosine(embeddings[i], embeddings[c]); sim > maxSim {
					maxSim = sim
				}
			}
			if maxSim < nextSim {
				nextSim = maxSim
				next = i
			}
		}
		if next < 0 {
			break
		}
		chosen = append(chosen, next)
	}

	centroids := make([][]float64, len(chosen))
	for i, idx := range chosen {
		centroid := make([]float64, len(embeddings[idx]))
		copy(centroid, embeddings[idx])
		centroids[i] = centroid
	}
	return centroids
}

// cosine 计算余弦相似度
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
