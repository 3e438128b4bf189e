package estimate

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/esg-research/internal/model"
)

// fit is an OLS solution with its coefficient covariance.
type fit struct {
	beta     *mat.VecDense
	cov      *mat.Dense
	n, k     int
	df       int
	clusters int
	r2       float64
}

// rank returns the numerical rank of X using the singular-value tolerance
// max(n, k) · eps · σ_max.
func rank(X *mat.Dense) (int, error) {
	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDNone); !ok {
		return 0, eris.New("estimate: svd did not converge")
	}
	vals := svd.Values(nil)
	if len(vals) == 0 {
		return 0, nil
	}
	n, k := X.Dims()
	tol := float64(max(n, k)) * vals[0] * 2.220446049250313e-16
	r := 0
	for _, v := range vals {
		if v > tol {
			r++
		}
	}
	return r, nil
}

// ols solves the least-squares problem in d and computes the covariance for se.
// The caller has already checked that n > k.
func ols(d *design, se SEType) (*fit, error) {
	n, k := d.X.Dims()

	r, err := rank(d.X)
	if err != nil {
		return nil, err
	}
	if r < k {
		return nil, eris.Wrapf(model.ErrRankDeficient, "estimate: design has rank %d < %d columns", r, k)
	}

	xtx := mat.NewSymDense(k, nil)
	xtx.SymOuterK(1, d.X.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return nil, eris.Wrap(model.ErrRankDeficient, "estimate: X'X is not positive definite")
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, eris.Wrap(model.ErrRankDeficient, "estimate: invert X'X")
	}

	var xty, beta mat.VecDense
	xty.MulVec(d.X.T(), d.y)
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, eris.Wrap(model.ErrRankDeficient, "estimate: solve normal equations")
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(d.X, &beta)
	resid.SubVec(d.y, &fitted)

	f := &fit{beta: &beta, n: n, k: k, df: n - k, r2: rSquared(d.y, &resid)}
	rss := mat.Dot(&resid, &resid)

	switch se {
	case SEClassical:
		f.cov = mat.NewDense(k, k, nil)
		f.cov.Scale(rss/float64(n-k), &inv)
	case SEHC1:
		meat := hcMeat(d.X, &resid, nil)
		f.cov = sandwich(&inv, meat, float64(n)/float64(n-k))
	case SEHC3:
		lev := leverage(d.X, &inv)
		meat := hcMeat(d.X, &resid, lev)
		f.cov = sandwich(&inv, meat, 1)
	case SECluster:
		meat, g := clusterMeat(d.X, &resid, d.clusters, d.nFirms)
		if g < 2 {
			return nil, eris.Wrapf(model.ErrInsufficientSample, "estimate: %d cluster(s), need at least 2", g)
		}
		scale := float64(g) / float64(g-1) * float64(n-1) / float64(n-k)
		f.cov = sandwich(&inv, meat, scale)
		f.clusters = g
		f.df = g - 1
	default:
		return nil, eris.Errorf("estimate: unknown se type %q", se)
	}
	return f, nil
}

// hcMeat returns Σ ê_i² x_i x_iᵀ, dividing each residual by (1 − h_ii) when
// leverage is given (HC3). Rows with h_ii ≈ 1 fit exactly and contribute nothing.
func hcMeat(X *mat.Dense, resid *mat.VecDense, lev []float64) *mat.Dense {
	n, k := X.Dims()
	scores := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		e := resid.AtVec(i)
		if lev != nil {
			if 1-lev[i] < 1e-10 {
				continue
			}
			e /= 1 - lev[i]
		}
		for j := 0; j < k; j++ {
			scores.Set(i, j, X.At(i, j)*e)
		}
	}
	var meat mat.Dense
	meat.Mul(scores.T(), scores)
	return &meat
}

// clusterMeat returns Σ_g s_g s_gᵀ with s_g = Σ_{i∈g} x_i ê_i, and the number
// of non-empty clusters.
func clusterMeat(X *mat.Dense, resid *mat.VecDense, cluster []int, groups int) (*mat.Dense, int) {
	n, k := X.Dims()
	scores := mat.NewDense(max(groups, 1), k, nil)
	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		g := cluster[i]
		seen[g] = true
		e := resid.AtVec(i)
		for j := 0; j < k; j++ {
			scores.Set(g, j, scores.At(g, j)+X.At(i, j)*e)
		}
	}
	var meat mat.Dense
	meat.Mul(scores.T(), scores)
	return &meat, len(seen)
}

// leverage returns the diagonal of the hat matrix X (XᵀX)⁻¹ Xᵀ.
func leverage(X *mat.Dense, inv mat.Symmetric) []float64 {
	n, _ := X.Dims()
	var xa mat.Dense
	xa.Mul(X, inv)
	h := make([]float64, n)
	for i := range h {
		h[i] = mat.Dot(xa.RowView(i), X.RowView(i))
	}
	return h
}

func sandwich(bread mat.Symmetric, meat *mat.Dense, scale float64) *mat.Dense {
	var tmp, cov mat.Dense
	tmp.Mul(bread, meat)
	cov.Mul(&tmp, bread)
	cov.Scale(scale, &cov)
	return &cov
}

// rSquared is the centered R² for outcome y and residuals resid.
func rSquared(y, resid *mat.VecDense) float64 {
	n := y.Len()
	var mean float64
	for i := 0; i < n; i++ {
		mean += y.AtVec(i)
	}
	mean /= float64(n)
	var tss float64
	for i := 0; i < n; i++ {
		d := y.AtVec(i) - mean
		tss += d * d
	}
	if tss == 0 {
		return 0
	}
	return 1 - mat.Dot(resid, resid)/tss
}

// coef returns the estimate, standard error, t statistic and two-sided p-value
// for column j. A non-positive variance yields se = 0, t = 0, p = 1.
func (f *fit) coef(j int) (b, se, t, p float64) {
	b = f.beta.AtVec(j)
	v := f.cov.At(j, j)
	if v <= 0 {
		return b, 0, 0, 1
	}
	se = math.Sqrt(v)
	t = b / se
	p = 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(f.df)}.Survival(math.Abs(t))
	return b, se, t, p
}
