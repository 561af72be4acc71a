package decision

import (
	"math"
)

// voteOrder 固定动作遍历顺序，保证同样输入永远得到同样结果。
var voteOrder = []Action{ActionBuy, ActionSell, ActionHold}

const tieEpsilon = 1e-9

type resolvedVote struct {
	Action      Action
	Confidence  float64
	Tier        Tier
	WeightsUsed map[string]float64
	// StopPct 是支持方建议止损距离的加权均值（0 表示无建议）。
	StopPct float64
}

// resolveVotes 依次尝试 weighted -> majority -> single 三个档位，
// 第一个可用的档位胜出。零存活 Provider 返回 ErrAllProvidersFailed。
func resolveVotes(votes []ProviderVote, weights map[string]float64, singleCap float64) (resolvedVote, error) {
	survivors := make([]ProviderVote, 0, len(votes))
	for _, v := range votes {
		if v.Status == VoteOK {
			survivors = append(survivors, v)
		}
	}
	if len(survivors) == 0 {
		return resolvedVote{}, ErrAllProvidersFailed
	}

	if len(survivors) >= 2 {
		if r, ok := resolveWeighted(survivors, weights); ok {
			return r, nil
		}
		return resolveMajority(survivors), nil
	}

	// 单 Provider 档：直接采纳，但置信度压到保守上限以下
	v := survivors[0]
	conf := v.Confidence
	if singleCap > 0 && conf > singleCap {
		conf = singleCap
	}
	return resolvedVote{
		Action:      v.Action,
		Confidence:  conf,
		Tier:        TierSingle,
		WeightsUsed: map[string]float64{v.ProviderID: 1},
		StopPct:     v.StopLossPct,
	}, nil
}

// resolveWeighted 计算各动作的加权得分。权重只在存活 Provider 之间
// 重新归一（失败者的权重被剔除，而不是摊给别人）。不足两个正权重
// 存活者时档位不可用。
func resolveWeighted(survivors []ProviderVote, weights map[string]float64) (resolvedVote, bool) {
	totalWeight := 0.0
	positive := 0
	for _, v := range survivors {
		w := weights[v.ProviderID]
		if w > 0 {
			totalWeight += w
			positive++
		}
	}
	if positive < 2 || totalWeight <= 0 {
		return resolvedVote{}, false
	}

	normalized := make(map[string]float64, positive)
	scores := map[Action]float64{}
	confSum := map[Action]float64{}
	confWeight := map[Action]float64{}
	stopSum := map[Action]float64{}
	stopWeight := map[Action]float64{}
	for _, v := range survivors {
		w := weights[v.ProviderID]
		if w <= 0 {
			continue
		}
		wn := w / totalWeight
		normalized[v.ProviderID] = wn
		scores[v.Action] += wn * v.Confidence
		confSum[v.Action] += wn * v.Confidence
		confWeight[v.Action] += wn
		if v.StopLossPct > 0 {
			stopSum[v.Action] += wn * v.StopLossPct
			stopWeight[v.Action] += wn
		}
	}

	winner := pickTopAction(scores)
	conf := 0.0
	if confWeight[winner] > 0 {
		conf = confSum[winner] / confWeight[winner]
	}
	stop := 0.0
	if stopWeight[winner] > 0 {
		stop = stopSum[winner] / stopWeight[winner]
	}
	return resolvedVote{
		Action:      winner,
		Confidence:  conf,
		Tier:        TierWeighted,
		WeightsUsed: normalized,
		StopPct:     stop,
	}, true
}

// resolveMajority 简单计票，平票偏向 hold。
func resolveMajority(survivors []ProviderVote) resolvedVote {
	counts := map[Action]float64{}
	confSum := map[Action]float64{}
	stopSum := map[Action]float64{}
	stopCnt := map[Action]float64{}
	used := make(map[string]float64, len(survivors))
	for _, v := range survivors {
		counts[v.Action]++
		confSum[v.Action] += v.Confidence
		if v.StopLossPct > 0 {
			stopSum[v.Action] += v.StopLossPct
			stopCnt[v.Action]++
		}
		used[v.ProviderID] = 1
	}
	winner := pickTopAction(counts)
	conf := 0.0
	if counts[winner] > 0 {
		conf = confSum[winner] / counts[winner]
	}
	stop := 0.0
	if stopCnt[winner] > 0 {
		stop = stopSum[winner] / stopCnt[winner]
	}
	return resolvedVote{
		Action:      winner,
		Confidence:  conf,
		Tier:        TierMajority,
		WeightsUsed: used,
		StopPct:     stop,
	}
}

// pickTopAction 返回得分最高的动作；最高分并列时偏向 hold。
func pickTopAction(scores map[Action]float64) Action {
	best := ActionHold
	bestScore := math.Inf(-1)
	tie := false
	for _, a := range voteOrder {
		s, ok := scores[a]
		if !ok {
			continue
		}
		switch {
		case s > bestScore+tieEpsilon:
			best, bestScore, tie = a, s, false
		case math.Abs(s-bestScore) <= tieEpsilon:
			tie = true
		}
	}
	if tie {
		return ActionHold
	}
	return best
}
