package track

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Measurement represents a 1x2 matrix using a slice of float32 holding an
// observed center position
type Measurement []float32

// StateMean represents a 1x4 matrix using a slice of float32 holding the
// filter state (x, y, vx, vy)
type StateMean []float32

// StateCov represents a 4x4 matrix
type StateCov struct {
	*mat.Dense
}

// referenceScale is the nominal object size in pixels the noise weights
// are tuned against
const referenceScale = 100

// KalmanFilter represents a constant-velocity Kalman filter over a 2D
// center position.  Measurement noise sits a fixed ratio above the
// position process noise
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *KalmanFilter {

	ndim := 2
	dt := float32(1.0)

	// create identity matrix for motionMat
	motionMat := mat.NewDense(4, 4, nil)

	for i := 0; i < 4; i++ {
		motionMat.Set(i, i, float64(1.0))
	}

	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, float64(dt))
	}

	// create updateMat as a 2x4 matrix with first 2 diagonal elements set to 1
	updateMat := mat.NewDense(2, 4, nil)

	for i := 0; i < 2; i++ {
		updateMat.Set(i, i, float64(1.0))
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// Initiate initializes the state mean and covariance from a first
// observed position
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement Measurement) {

	// copy the observed position into the mean
	copy(mean[:2], measurement[:2])

	// zero the velocity components
	for i := 2; i < 4; i++ {
		mean[i] = 0.0
	}

	// initialize the standard deviation array for the state variables.
	// the initial position uncertainty is wide so the first measurements
	// dominate the seed position
	std := make(StateMean, 4)
	std[0] = 10 * kf.stdWeightPosition * referenceScale // x position
	std[1] = 10 * kf.stdWeightPosition * referenceScale // y position
	std[2] = 10 * kf.stdWeightVelocity * referenceScale // x velocity
	std[3] = 10 * kf.stdWeightVelocity * referenceScale // y velocity

	// square the standard deviations to get the variances
	tmp := make(StateMean, 4)

	for i, v := range std {
		tmp[i] = v * v
	}

	// set the diagonal elements of the covariance matrix to the variances
	for i := 0; i < 4; i++ {
		covariance.Set(i, i, float64(tmp[i]))
	}
}

// Predict predicts the next state mean and covariance
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov) {

	// initialize the standard deviation array for the state variables
	std := make(StateMean, 4)
	std[0] = kf.stdWeightPosition * referenceScale // x position
	std[1] = kf.stdWeightPosition * referenceScale // y position
	std[2] = kf.stdWeightVelocity * referenceScale // x velocity
	std[3] = kf.stdWeightVelocity * referenceScale // y velocity

	// square the standard deviation values to get the variances
	tmp := make(StateMean, 4)

	for i, v := range std {
		tmp[i] = v * v
	}

	// create the motion covariance matrix with variances on the diagonal
	motionCov := mat.NewDense(4, 4, nil)

	for i := 0; i < 4; i++ {
		motionCov.Set(i, i, float64(tmp[i]))
	}

	// convert the mean state vector to a matrix for multiplication
	meanVec := mat.NewVecDense(4, nil)

	for i := 0; i < 4; i++ {
		meanVec.SetVec(i, float64(mean[i]))
	}

	meanMat := mat.NewDense(4, 1, meanVec.RawVector().Data)

	// predict the next state mean using the motion model
	meanMat.Mul(kf.motionMat, meanMat)

	for i := 0; i < 4; i++ {
		mean[i] = float32(meanMat.At(i, 0))
	}

	// predict the next state covariance using the motion model
	cov := covariance.Dense
	cov.Mul(kf.motionMat, cov)
	cov.Mul(cov, kf.motionMat.T())
	cov.Add(cov, motionCov)
}

// Update updates the state mean and covariance with an observed position
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement Measurement) error {

	// project the state mean and covariance to measurement space
	projectedMean, projectedCov := kf.project(mean, covariance)

	// perform Cholesky factorization of the projected covariance matrix
	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// compute the matrix B for Kalman gain calculation
	B := mat.NewDense(4, 2, nil)
	B.Mul(covariance.Dense, kf.updateMat.T())

	// compute the Kalman gain using the Cholesky factorization
	var kalmanGain mat.Dense
	err := chol.SolveTo(&kalmanGain, B.T())

	if err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	// compute the innovation (measurement residual)
	innovation := make([]float64, 2)

	for i := 0; i < 2; i++ {
		innovation[i] = float64(measurement[i] - projectedMean[i])
	}

	// update the state mean with the innovation
	innovationVec := mat.NewVecDense(2, innovation)
	tmp := mat.NewVecDense(4, nil)
	tmp.MulVec(kalmanGain.T(), innovationVec)

	for i := 0; i < 4; i++ {
		mean[i] += float32(tmp.AtVec(i))
	}

	// update the state covariance
	temp := mat.NewDense(4, 2, nil)
	temp.Mul(kalmanGain.T(), projectedCov)

	temp2 := mat.NewDense(4, 4, nil)
	temp2.Mul(temp, &kalmanGain)

	newCov := mat.NewDense(4, 4, nil)
	newCov.Sub(covariance.Dense, temp2)

	covariance.Dense = newCov

	return nil
}

// project projects the state mean and covariance to measurement space
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (Measurement, *mat.SymDense) {

	// measurement noise is held at a fixed ratio to the position
	// process noise
	std := make(Measurement, 2)
	std[0] = kf.stdWeightPosition * referenceScale
	std[1] = kf.stdWeightPosition * referenceScale

	// create the innovation covariance matrix (measurement noise covariance)
	innovationCov := mat.NewSymDense(2, nil)

	for i := 0; i < 2; i++ {
		innovationCov.SetSym(i, i, float64(std[i]*std[i]))
	}

	// project the state mean to measurement space
	projectedMeanVec := mat.NewVecDense(2, nil)
	projectedMeanVec.MulVec(
		kf.updateMat, mat.NewVecDense(4, func() []float64 {
			data := make([]float64, 4)
			for i, v := range mean {
				data[i] = float64(v)
			}
			return data
		}()),
	)

	// project the state covariance to measurement space
	projectedCov := mat.NewSymDense(2, nil)
	temp := mat.NewDense(2, 4, nil)
	temp.Mul(kf.updateMat, covariance.Dense)
	temp2 := mat.NewDense(2, 2, nil)
	temp2.Mul(temp, kf.updateMat.T())

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
	}

	// add the innovation covariance to the projected covariance
	projectedCov.AddSym(projectedCov, innovationCov)

	// convert the projected mean to Measurement type
	projectedMean := make(Measurement, 2)

	for i := 0; i < 2; i++ {
		projectedMean[i] = float32(projectedMeanVec.AtVec(i))
	}

	return projectedMean, projectedCov
}
